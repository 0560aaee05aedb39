// Package types defines the wire structures exchanged with IOC sources and report sinks
package types

import (
	"strings"
	"time"
)

// IocID identifies a top-level indicator as issued by the IOC source
type IocID uint64

// IocEntryID identifies a single node of a definition tree within one run
type IocEntryID uint64

// EvalPolicy combines either a node's own checks or its children
type EvalPolicy string

const (
	PolicyAll EvalPolicy = "ALL"
	PolicyOne EvalPolicy = "ONE"
)

// OrDefault returns ONE for an unset policy
func (p EvalPolicy) OrDefault() EvalPolicy {
	if p == "" {
		return PolicyOne
	}
	return EvalPolicy(strings.ToUpper(string(p)))
}

// SearchType selects literal or pattern matching
type SearchType string

const (
	SearchExact SearchType = "EXACT"
	SearchRegex SearchType = "REGEX"
)

// OrDefault returns EXACT for an unset search type
func (s SearchType) OrDefault() SearchType {
	if s == "" {
		return SearchExact
	}
	return SearchType(strings.ToUpper(string(s)))
}

// HashType is a supported digest algorithm
type HashType string

const (
	HashMD5    HashType = "MD5"
	HashSHA1   HashType = "SHA1"
	HashSHA256 HashType = "SHA256"
)

// CertSearchType selects which certificate name is matched
type CertSearchType string

const (
	CertSearchDomain CertSearchType = "DOMAIN"
	CertSearchIssuer CertSearchType = "ISSUER"
)

// ConnSearchType selects how a remote endpoint is matched
type ConnSearchType string

const (
	ConnSearchIP    ConnSearchType = "IP"
	ConnSearchExact ConnSearchType = "EXACT"
	ConnSearchRegex ConnSearchType = "REGEX"
)

// Hashed is an expected digest of a file or process image
type Hashed struct {
	Algorithm HashType `json:"algorithm" yaml:"algorithm" validate:"required,oneof=MD5 SHA1 SHA256"`
	Value     string   `json:"value" yaml:"value" validate:"required,hexadecimal"`
}

// FileInfo describes a file check
type FileInfo struct {
	Search SearchType `json:"search,omitempty" yaml:"search" validate:"omitempty,oneof=EXACT REGEX"`
	Name   string     `json:"name" yaml:"name"`
	Hash   *Hashed    `json:"hash,omitempty" yaml:"hash"`
}

// RegistryInfo describes a registry check
type RegistryInfo struct {
	Search    SearchType `json:"search,omitempty" yaml:"search" validate:"omitempty,oneof=EXACT REGEX"`
	Key       string     `json:"key" yaml:"key" validate:"required"`
	ValueName string     `json:"valueName" yaml:"valueName"`
	Value     *string    `json:"value,omitempty" yaml:"value"`
}

// DNSInfo lists cached host names to look for
type DNSInfo struct {
	Data []string `json:"data" yaml:"data" validate:"dive,required"`
}

// MutexInfo lists mutex names to look for
type MutexInfo struct {
	Data []string `json:"data" yaml:"data" validate:"dive,required"`
}

// ProcessInfo describes a process check by name and/or image hash
type ProcessInfo struct {
	Search SearchType `json:"search,omitempty" yaml:"search" validate:"omitempty,oneof=EXACT REGEX"`
	Hash   *Hashed    `json:"hash,omitempty" yaml:"hash"`
	Data   []string   `json:"data,omitempty" yaml:"data" validate:"required_without=Hash,dive,required"`
}

// ConnectionsInfo lists remote endpoints to look for
type ConnectionsInfo struct {
	Search ConnSearchType `json:"search" yaml:"search" validate:"required,oneof=IP EXACT REGEX"`
	Data   []string       `json:"data" yaml:"data" validate:"dive,required"`
}

// CertsInfo lists certificate names to look for
type CertsInfo struct {
	Search CertSearchType `json:"search" yaml:"search" validate:"required,oneof=DOMAIN ISSUER"`
	Data   []string       `json:"data" yaml:"data" validate:"dive,required"`
}

// IocEntry is one node of an IOC definition tree
type IocEntry struct {
	EvalPolicy      EvalPolicy       `json:"evalPolicy,omitempty" yaml:"evalPolicy" validate:"omitempty,oneof=ALL ONE"`
	Name            string           `json:"name,omitempty" yaml:"name"`
	ChildEvalPolicy EvalPolicy       `json:"childEvalPolicy,omitempty" yaml:"childEvalPolicy" validate:"omitempty,oneof=ALL ONE"`
	Offspring       []IocEntry       `json:"offspring,omitempty" yaml:"offspring" validate:"dive"`
	RegistryCheck   *RegistryInfo    `json:"registryCheck,omitempty" yaml:"registryCheck"`
	FileCheck       *FileInfo        `json:"fileCheck,omitempty" yaml:"fileCheck"`
	MutexCheck      *MutexInfo       `json:"mutexCheck,omitempty" yaml:"mutexCheck"`
	ProcessCheck    *ProcessInfo     `json:"processCheck,omitempty" yaml:"processCheck"`
	DNSCheck        *DNSInfo         `json:"dnsCheck,omitempty" yaml:"dnsCheck"`
	ConnsCheck      *ConnectionsInfo `json:"connsCheck,omitempty" yaml:"connsCheck"`
	CertsCheck      *CertsInfo       `json:"certsCheck,omitempty" yaml:"certsCheck"`
}

// ChecksSpecified counts the modality checks attached to this node
func (e *IocEntry) ChecksSpecified() int {
	n := 0
	if e.FileCheck != nil {
		n++
	}
	if e.RegistryCheck != nil {
		n++
	}
	if e.DNSCheck != nil {
		n++
	}
	if e.ConnsCheck != nil {
		n++
	}
	if e.ProcessCheck != nil {
		n++
	}
	if e.MutexCheck != nil {
		n++
	}
	if e.CertsCheck != nil {
		n++
	}
	return n
}

// Ioc is a top-level indicator and its definition tree
type Ioc struct {
	ID         IocID    `json:"id" yaml:"id"`
	Name       string   `json:"name,omitempty" yaml:"name"`
	Definition IocEntry `json:"definition" yaml:"definition"`
}

// DisplayName returns the IOC name or a placeholder
func (i *Ioc) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	if i.Definition.Name != "" {
		return i.Definition.Name
	}
	return "(unnamed)"
}

// GetIocResponse is the document served by IOC sources
type GetIocResponse struct {
	ReleaseDatetime *time.Time `json:"releaseDatetime,omitempty" yaml:"releaseDatetime"`
	Iocs            []Ioc      `json:"iocs" yaml:"iocs"`
}

// IocSearchResult is the evidence gathered for one IOC
type IocSearchResult struct {
	IocID IocID    `json:"iocId"`
	Data  []string `json:"data"`
}

// IocSearchError is a search failure attributed to one IOC
type IocSearchError struct {
	IocID   IocID  `json:"iocId"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Report is the outcome of one scan cycle
type Report struct {
	Datetime   time.Time         `json:"datetime"`
	ScanID     string            `json:"scanId,omitempty"`
	FoundIocs  []IocID           `json:"foundIocs"`
	IocResults []IocSearchResult `json:"iocResults"`
	IocErrors  []IocSearchError  `json:"iocErrors"`
}
