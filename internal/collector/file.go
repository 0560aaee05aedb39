package collector

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/logger"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/search"
	"github.com/digggggmori-pixel/agent-ferret-ioc/pkg/types"
)

// FileCollector searches the filesystem for IOC files
type FileCollector struct {
	opts     Options
	hasher   *Hasher
	resolver *DirResolver
}

// NewFileCollector creates a new file collector
func NewFileCollector(opts Options, hasher *Hasher) *FileCollector {
	if hasher == nil {
		hasher = NewHasher(0)
	}
	return &FileCollector{
		opts:     opts,
		hasher:   hasher,
		resolver: NewDirResolver(nil),
	}
}

type fileRequest struct {
	params    search.FileParameters
	path      string // resolved path as given
	dir       string // lower-cased parent directory, empty for a bare name
	base      string // lower-cased file name, empty for hash-only requests
	pattern   *search.Pattern
	hashError bool
}

// Search checks explicit paths first and walks the search roots for
// whatever is left when deep search is enabled.
func (c *FileCollector) Search(params []search.FileParameters) []search.Outcome {
	if len(params) == 0 {
		return nil
	}
	logger.Section("File Search")
	startTime := time.Now()

	patterns, results := compilePatterns(search.File, params, c.opts.RegexTimeout,
		func(p search.FileParameters) (search.Tag, bool, string) {
			return p.Tag, p.Search == types.SearchRegex, p.Name
		})

	var pending []*fileRequest
	for i, p := range params {
		req := &fileRequest{params: p}
		if p.Search == types.SearchRegex {
			re, ok := patterns[i]
			if !ok {
				continue
			}
			req.pattern = re
			pending = append(pending, req)
			continue
		}

		if p.Name == "" && p.Hash == nil {
			logger.Warn("File search: IOC %d has neither name nor hash, skipped", p.IocID)
			continue
		}

		req.path = c.resolver.Resolve(p.Name)
		if req.path != "" {
			req.base = strings.ToLower(filepath.Base(req.path))
			if strings.ContainsAny(req.path, `/\`) {
				req.dir = strings.ToLower(filepath.Clean(filepath.Dir(req.path)))
			}
		}

		if req.dir != "" && filepath.IsAbs(req.path) {
			if out, ok := c.checkFile(req, req.path); ok {
				results = append(results, out)
				if out.OK() {
					continue
				}
				req.hashError = true
			}
		}
		pending = append(pending, req)
	}

	found := len(results)
	if len(pending) == 0 {
		logger.Info("File search: all %d requests resolved directly", len(params))
		logger.Timing("FileCollector.Search", startTime)
		return results
	}
	if !c.opts.DeepSearch {
		logger.Info("File search: %d outcomes for %d requests, skipping deep search", found, len(params))
		logger.Timing("FileCollector.Search", startTime)
		return results
	}

	logger.Info("File search: %d requests unresolved, starting deep search", len(pending))
	for _, root := range c.roots() {
		results = append(results, c.deepSearch(root, pending)...)
	}

	logger.Timing("FileCollector.Search", startTime)
	logger.Info("File search: %d outcomes for %d requests", len(results), len(params))
	return results
}

func (c *FileCollector) roots() []string {
	if len(c.opts.SearchRoots) == 0 {
		return fixedDrives()
	}
	roots := make([]string, 0, len(c.opts.SearchRoots))
	for _, r := range c.opts.SearchRoots {
		roots = append(roots, c.resolver.Resolve(r))
	}
	return roots
}

// deepSearch walks root once, testing every file against each request not
// yet matched under this root.
func (c *FileCollector) deepSearch(root string, pending []*fileRequest) []search.Outcome {
	logger.SubSection("Deep search in " + root)

	var results []search.Outcome
	matched := make([]bool, len(pending))
	remaining := len(pending)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Debug("File search: skipping %s: %v", path, err)
			return nil
		}
		if remaining == 0 {
			return filepath.SkipAll
		}
		if !d.Type().IsRegular() {
			return nil
		}

		for i, req := range pending {
			if matched[i] || !c.nameMatches(req, path, d.Name()) {
				continue
			}
			out, ok := c.checkFile(req, path)
			if !ok {
				continue
			}
			if out.OK() {
				matched[i] = true
				remaining--
				results = append(results, out)
			} else if !req.hashError {
				// report a request's first hash failure only
				req.hashError = true
				results = append(results, out)
			}
		}
		return nil
	})
	if err != nil {
		logger.Warn("File search: walk of %s stopped: %v", root, err)
	}
	return results
}

func (c *FileCollector) nameMatches(req *fileRequest, path, name string) bool {
	if req.pattern != nil {
		return req.pattern.MatchString(name) || req.pattern.MatchString(path)
	}
	if req.base == "" {
		return true
	}
	if strings.ToLower(name) != req.base {
		return false
	}
	return req.dir == "" || strings.ToLower(filepath.Dir(path)) == req.dir
}

// checkFile verifies an existing file against the request's hash. ok is
// false when there is nothing to report.
func (c *FileCollector) checkFile(req *fileRequest, path string) (search.Outcome, bool) {
	p := req.params
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return search.Outcome{}, false
	}

	if p.Hash == nil {
		logger.Info("File search: Found %s for IOC %d", path, p.IocID)
		return search.Hit(p.Tag, search.File, "File search: Found %s for IOC %d", path, p.IocID), true
	}

	ok, err := c.hasher.Matches(path, p.Hash)
	if err != nil {
		logger.Error("File search: Cannot compute %s hash of %s: %v", p.Hash.Algorithm, path, err)
		return search.Fail(p.Tag, search.File, search.KindHash, "cannot compute %s hash of %s: %v", p.Hash.Algorithm, path, err), true
	}
	if !ok {
		logger.Debug("File search: hash mismatch for %s", path)
		return search.Outcome{}, false
	}

	logger.Info("File search: Found %s with %s %s for IOC %d", path, p.Hash.Algorithm, p.Hash.Value, p.IocID)
	return search.Hit(p.Tag, search.File, "File search: Found %s with %s hash %s for IOC %d", path, p.Hash.Algorithm, p.Hash.Value, p.IocID), true
}
