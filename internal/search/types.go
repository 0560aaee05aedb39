// Package search defines the flat search requests handed to collectors and
// the outcomes they return.
package search

import "github.com/digggggmori-pixel/agent-ferret-ioc/pkg/types"

// Modality is one evidence source
type Modality string

const (
	File        Modality = "file"
	Registry    Modality = "registry"
	DNS         Modality = "dns"
	Connection  Modality = "connection"
	Process     Modality = "process"
	Mutex       Modality = "mutex"
	Certificate Modality = "certificate"
)

// Modalities lists every modality in scan order
var Modalities = []Modality{File, Registry, DNS, Connection, Process, Mutex, Certificate}

// Tag correlates a request or outcome with its IOC tree node
type Tag struct {
	IocID   types.IocID
	EntryID types.IocEntryID
}

// Ref returns the tag. It is promoted to every parameter type, so generic
// code can correlate requests without knowing their modality.
func (t Tag) Ref() Tag { return t }

// FileParameters is one file search request
type FileParameters struct {
	Tag
	Search types.SearchType
	Name   string
	Hash   *types.Hashed
}

// RegistryParameters is one registry search request
type RegistryParameters struct {
	Tag
	Search    types.SearchType
	Key       string
	ValueName string
	Value     *string
}

// DNSParameters is one DNS cache search request
type DNSParameters struct {
	Tag
	Name string
}

// ConnectionParameters is one open-connection search request
type ConnectionParameters struct {
	Tag
	Search types.ConnSearchType
	Name   string
}

// ProcessParameters is one process search request. Name may be empty when
// only the image hash is constrained.
type ProcessParameters struct {
	Tag
	Search types.SearchType
	Name   string
	Hash   *types.Hashed
}

// CertificateParameters is one certificate search request
type CertificateParameters struct {
	Tag
	Search types.CertSearchType
	Name   string
}

// MutexParameters is one mutex search request
type MutexParameters struct {
	Tag
	Name string
}

// Requests groups the per-modality request lists produced for one run
type Requests struct {
	Files        []FileParameters
	Registry     []RegistryParameters
	DNS          []DNSParameters
	Connections  []ConnectionParameters
	Processes    []ProcessParameters
	Certificates []CertificateParameters
	Mutexes      []MutexParameters
}

// Count returns the number of requests for a modality
func (r *Requests) Count(m Modality) int {
	switch m {
	case File:
		return len(r.Files)
	case Registry:
		return len(r.Registry)
	case DNS:
		return len(r.DNS)
	case Connection:
		return len(r.Connections)
	case Process:
		return len(r.Processes)
	case Mutex:
		return len(r.Mutexes)
	case Certificate:
		return len(r.Certificates)
	}
	return 0
}

// Drop clears the requests of a disabled modality
func (r *Requests) Drop(m Modality) {
	switch m {
	case File:
		r.Files = nil
	case Registry:
		r.Registry = nil
	case DNS:
		r.DNS = nil
	case Connection:
		r.Connections = nil
	case Process:
		r.Processes = nil
	case Mutex:
		r.Mutexes = nil
	case Certificate:
		r.Certificates = nil
	}
}

// Total returns the number of requests across all modalities
func (r *Requests) Total() int {
	n := 0
	for _, m := range Modalities {
		n += r.Count(m)
	}
	return n
}
