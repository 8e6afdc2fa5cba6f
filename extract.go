package modeldump

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/spf13/afero"

	"github.com/kisielk/modeldump/pickle"
)

// DefaultExtraFileSizeLimit is the size above which extra files are left
// out of a report.
const DefaultExtraFileSizeLimit = 16 * 1024

// Entry names inside an archive, relative to its prefix.
const (
	versionEntry    = "version"
	dataEntry       = "data.pkl"
	codeSuffix      = ".py"
	debugInfoSuffix = ".debug_pkl"
	pickleSuffix    = ".pkl"
)

// alwaysRenderPickles are pickles included regardless of their size.
var alwaysRenderPickles = map[string]bool{
	"bytecode.pkl": true,
}

// Config configures model extraction.
type Config struct {
	// Title of the report. The model path is used when empty.
	Title string

	// ExtraFileSizeLimit is the largest size of extra JSON files and
	// rendered pickles that are included in the report. Values <= 0 mean
	// DefaultExtraFileSizeLimit.
	ExtraFileSizeLimit int64

	// StrictExtraJSON makes malformed extra JSON files an error. By default
	// they are logged and left out.
	StrictExtraJSON bool

	// CatchInvalidUTF8 is passed to the pickle decoder.
	CatchInvalidUTF8 bool

	// Logger receives records about skipped entries. Nil discards them.
	Logger *slog.Logger
}

// DefaultConfig returns the configuration used when Extract is given nil.
func DefaultConfig() *Config {
	return &Config{ExtraFileSizeLimit: DefaultExtraFileSizeLimit}
}

func (c *Config) sizeLimit() int64 {
	if c.ExtraFileSizeLimit <= 0 {
		return DefaultExtraFileSizeLimit
	}
	return c.ExtraFileSizeLimit
}

func (c *Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

// ExtractFile extracts the report of the model archive at name in fs.
func ExtractFile(fs afero.Fs, name string, config *Config) (*Report, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, fmt.Errorf("modeldump: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("modeldump: %w", err)
	}

	c := DefaultConfig()
	if config != nil {
		*c = *config
	}
	if c.Title == "" {
		c.Title = name
	}
	return Extract(f, fi.Size(), c)
}

// Extract extracts the report of the model archive of the given size read
// from r.
//
// The archive must hold all its entries under one directory, together with
// version and data.pkl entries. Every .py source must be accompanied by
// its .py.debug_pkl debug info.
func Extract(r io.ReaderAt, size int64, config *Config) (*Report, error) {
	if config == nil {
		config = DefaultConfig()
	}
	title := config.Title
	if title == "" {
		title = "buffer"
	}

	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("modeldump: %w", err)
	}
	x := &extractor{
		config:   config,
		log:      config.logger().With("title", title),
		limit:    config.sizeLimit(),
		files:    make(map[string]*zip.File, len(zr.File)),
		interned: NewInterner[any](),
	}
	return x.extract(zr.File, title, size)
}

// extractor holds the state of one extraction run.
type extractor struct {
	config *Config
	log    *slog.Logger
	limit  int64

	entries  []*zip.File
	files    map[string]*zip.File
	prefix   string
	interned *Interner[any]
}

func (x *extractor) extract(entries []*zip.File, title string, size int64) (*Report, error) {
	zipFiles, err := x.enumerate(entries)
	if err != nil {
		return nil, err
	}
	x.log.Debug("extracting model", "prefix", x.prefix, "entries", len(entries))

	version, err := x.read(x.prefix + "/" + versionEntry)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(version) {
		return nil, fmt.Errorf("modeldump: %s: version is not valid UTF-8", versionEntry)
	}

	raw, err := x.decode(x.prefix + "/" + dataEntry)
	if err != nil {
		return nil, err
	}
	modelData, err := Normalize(raw)
	if err != nil {
		return nil, err
	}

	codeFiles, err := x.codeFiles()
	if err != nil {
		return nil, err
	}
	extraJSONs, err := x.extraJSONs()
	if err != nil {
		return nil, err
	}
	extraPickles, err := x.extraPickles()
	if err != nil {
		return nil, err
	}

	interned := x.interned.Values()
	for i, s := range interned {
		if _, ok := s.(pickle.None); ok {
			interned[i] = nil
		}
	}

	return &Report{
		Title:           title,
		FileSize:        size,
		Version:         strings.TrimSpace(string(version)),
		ZipFiles:        zipFiles,
		InternedStrings: interned,
		CodeFiles:       codeFiles,
		ModelData:       modelData,
		ExtraFilesJSONs: extraJSONs,
		ExtraPickles:    extraPickles,
	}, nil
}

// enumerate records all entries and checks they share one prefix.
func (x *extractor) enumerate(entries []*zip.File) ([]ZipFile, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyArchive
	}
	zipFiles := make([]ZipFile, 0, len(entries))
	for i, f := range entries {
		prefix, _, _ := strings.Cut(f.Name, "/")
		if i == 0 {
			x.prefix = prefix
		} else if prefix != x.prefix {
			return nil, fmt.Errorf("%w: %s != %s", ErrMismatchedPrefix, x.prefix, prefix)
		}
		x.files[f.Name] = f
		zipFiles = append(zipFiles, ZipFile{
			Filename:       f.Name,
			Compression:    f.Method,
			CompressedSize: f.CompressedSize64,
			FileSize:       f.UncompressedSize64,
		})
	}
	x.entries = entries
	return zipFiles, nil
}

func (x *extractor) open(name string) (io.ReadCloser, error) {
	f, ok := x.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingEntry, name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("modeldump: %s: %w", name, err)
	}
	return rc, nil
}

func (x *extractor) read(name string) ([]byte, error) {
	rc, err := x.open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("modeldump: %s: %w", name, err)
	}
	return data, nil
}

func (x *extractor) decode(name string) (any, error) {
	rc, err := x.open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	d := pickle.NewDecoderWithConfig(rc, &pickle.DecoderConfig{
		CatchInvalidUTF8: x.config.CatchInvalidUTF8,
	})
	v, err := d.Decode()
	if err != nil {
		return nil, fmt.Errorf("modeldump: %s: %w", name, err)
	}
	return v, nil
}

// codeFiles splits every source file into spans of its debug info.
func (x *extractor) codeFiles() (*OrderedMap[[]CodeSpan], error) {
	codeFiles := NewOrderedMap[[]CodeSpan]()
	for _, f := range x.entries {
		if !strings.HasSuffix(f.Name, codeSuffix) {
			continue
		}
		code, err := x.read(f.Name)
		if err != nil {
			return nil, err
		}
		debugName := f.Name + debugInfoSuffix
		raw, err := x.decode(debugName)
		if err != nil {
			return nil, err
		}
		records, err := parseDebugInfo(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDebugInfo, debugName, err)
		}
		spans, err := correlate(code, records, x.interned)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDebugInfo, debugName, err)
		}
		codeFiles.Set(f.Name, spans)
	}
	return codeFiles, nil
}

// extraJSONs collects JSON files under extra/ that fit the size limit.
func (x *extractor) extraJSONs() (*OrderedMap[json.RawMessage], error) {
	re := regexp.MustCompile("^" + regexp.QuoteMeta(x.prefix) + `/extra/.*\.json$`)
	extras := NewOrderedMap[json.RawMessage]()
	for _, f := range x.entries {
		if !re.MatchString(f.Name) {
			continue
		}
		if f.UncompressedSize64 > uint64(x.limit) {
			x.log.Info("skipping extra file", "entry", f.Name, "reason", "size limit",
				"size", f.UncompressedSize64, "limit", x.limit)
			continue
		}
		data, err := x.read(f.Name)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			if x.config.StrictExtraJSON {
				return nil, fmt.Errorf("modeldump: %s: %w", f.Name, err)
			}
			x.log.Warn("skipping extra file", "entry", f.Name, "reason", "malformed json",
				"error", err)
			continue
		}
		extras.Set(f.Name, json.RawMessage(buf.Bytes()))
	}
	return extras, nil
}

// extraPickles renders every pickle whose rendering fits the size limit.
// The rendered text is checked instead of the entry size because shared
// structure can make a small pickle render large.
func (x *extractor) extraPickles() (*OrderedMap[string], error) {
	pickles := NewOrderedMap[string]()
	for _, f := range x.entries {
		if !strings.HasSuffix(f.Name, pickleSuffix) {
			continue
		}
		v, err := x.decode(f.Name)
		if err != nil {
			return nil, err
		}
		text, err := pickle.PFormat(v)
		if err != nil {
			return nil, fmt.Errorf("modeldump: %s: %w", f.Name, err)
		}
		text += "\n"

		n := utf8.RuneCountInString(text)
		if !alwaysRenderPickles[path.Base(f.Name)] && int64(n) > x.limit {
			x.log.Info("skipping extra file", "entry", f.Name, "reason", "size limit",
				"size", n, "limit", x.limit)
			continue
		}
		pickles.Set(f.Name, text)
	}
	return pickles, nil
}
