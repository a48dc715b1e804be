package backends

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	gotoml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"lsgw/internal/config"
	"lsgw/internal/paths"
)

// ManifestFile is the workspace-level backend manifest.
const ManifestFile = "BACKENDS.toml"

// Provider supplies raw backend configurations. A provider may return
// usable configs together with an error describing the ones it skipped.
type Provider interface {
	Name() string
	Backends(ctx context.Context) ([]config.BackendConfig, error)
}

// DefaultProviders returns the providers the gateway consults, in order.
func DefaultProviders(cfg *config.Config, root string) []Provider {
	return []Provider{
		&ConfigProvider{Config: cfg},
		&ManifestProvider{Path: filepath.Join(root, ManifestFile)},
		&TOMLDirProvider{Dir: paths.GetBackendsDir(root)},
		&YAMLDirProvider{Dir: paths.GetBackendsDir(root)},
	}
}

// ConfigProvider returns the backends declared inline in the main config.
type ConfigProvider struct {
	Config *config.Config
}

func (p *ConfigProvider) Name() string { return "config" }

func (p *ConfigProvider) Backends(context.Context) ([]config.BackendConfig, error) {
	if p.Config == nil {
		return nil, nil
	}
	return p.Config.Backends, nil
}

// StaticProvider returns a fixed list.
type StaticProvider struct {
	Label   string
	Configs []config.BackendConfig
}

func (p *StaticProvider) Name() string {
	if p.Label == "" {
		return "static"
	}
	return p.Label
}

func (p *StaticProvider) Backends(context.Context) ([]config.BackendConfig, error) {
	return p.Configs, nil
}

// manifest is the root structure of BACKENDS.toml
type manifest struct {
	// Version is the schema version
	Version int `toml:"version"`

	// Backends is the list of declared backends
	Backends []config.BackendConfig `toml:"backend"`
}

// ManifestProvider reads BACKENDS.toml at the workspace root.
type ManifestProvider struct {
	Path string
}

func (p *ManifestProvider) Name() string { return "manifest" }

func (p *ManifestProvider) Backends(context.Context) ([]config.BackendConfig, error) {
	data, err := os.ReadFile(p.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ManifestFile, err)
	}

	var m manifest
	if err := gotoml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ManifestFile, err)
	}
	if m.Version > config.CurrentVersion {
		return nil, fmt.Errorf("%s: unsupported version %d", ManifestFile, m.Version)
	}
	return m.Backends, nil
}

// TOMLDirProvider reads one backend per *.toml file in Dir.
type TOMLDirProvider struct {
	Dir string
}

func (p *TOMLDirProvider) Name() string { return "toml-dir" }

func (p *TOMLDirProvider) Backends(ctx context.Context) ([]config.BackendConfig, error) {
	return readDir(ctx, p.Dir, []string{".toml"}, func(path string) ([]config.BackendConfig, error) {
		var bc config.BackendConfig
		md, err := toml.DecodeFile(path, &bc)
		if err != nil {
			return nil, err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}
		if bc.ID == "" {
			bc.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		return []config.BackendConfig{bc}, nil
	})
}

// yamlDocument accepts either a single backend or a "backends" list.
type yamlDocument struct {
	Backends             []config.BackendConfig `yaml:"backends"`
	config.BackendConfig `yaml:",inline"`
}

// YAMLDirProvider reads *.yaml and *.yml files in Dir. Each file may hold
// several documents.
type YAMLDirProvider struct {
	Dir string
}

func (p *YAMLDirProvider) Name() string { return "yaml-dir" }

func (p *YAMLDirProvider) Backends(ctx context.Context) ([]config.BackendConfig, error) {
	return readDir(ctx, p.Dir, []string{".yaml", ".yml"}, func(path string) ([]config.BackendConfig, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		var out []config.BackendConfig
		dec := yaml.NewDecoder(bytes.NewReader(data))
		for {
			var doc yamlDocument
			err := dec.Decode(&doc)
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}
			out = append(out, doc.Backends...)
			if doc.ID != "" {
				out = append(out, doc.BackendConfig)
			}
		}
		return out, nil
	})
}

// readDir applies parse to every file in dir with one of exts, in name
// order. Parse failures are collected and do not stop the scan.
func readDir(ctx context.Context, dir string, exts []string, parse func(string) ([]config.BackendConfig, error)) ([]config.BackendConfig, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range exts {
			if ext == want {
				names = append(names, e.Name())
				break
			}
		}
	}
	sort.Strings(names)

	var out []config.BackendConfig
	var errs []error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		path := filepath.Join(dir, name)
		configs, err := parse(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		out = append(out, configs...)
	}
	return out, stderrors.Join(errs...)
}
