package checker

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config controls checking. It is read from typhon.toml or the
// [tool.typhon] table of pyproject.toml.
type Config struct {
	// PythonVersion is the targeted language version, e.g. "3.12".
	PythonVersion string `toml:"python_version"`
	// SearchPaths are extra roots for import resolution, relative to the
	// config file.
	SearchPaths []string `toml:"search_paths"`

	// MaxUnionExpansion bounds the argument lists tried when expanding
	// union-typed arguments against overloads.
	MaxUnionExpansion int `toml:"max_union_expansion"`
	// MaxLoopIterations bounds the fixed-point passes over a loop.
	MaxLoopIterations int `toml:"max_loop_iterations"`
	// MaxUnionMembers bounds unions produced by literal math.
	MaxUnionMembers int `toml:"max_union_members"`

	ReportUnsafeCapture        bool `toml:"report_unsafe_capture"`
	ReportOverlappingOverloads bool `toml:"report_overlapping_overloads"`
	// StrictUnknown reports expressions whose type is partially unknown.
	StrictUnknown bool `toml:"strict_unknown"`

	// Dir is the directory containing the config file.
	Dir string `toml:"-"`
}

// DefaultConfig returns the settings used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		PythonVersion:              "3.13",
		MaxUnionExpansion:          64,
		MaxLoopIterations:          64,
		MaxUnionMembers:            64,
		ReportUnsafeCapture:        true,
		ReportOverlappingOverloads: true,
	}
}

// Version parses PythonVersion into major and minor numbers.
func (c *Config) Version() ([2]int, error) {
	major, minor, ok := strings.Cut(c.PythonVersion, ".")
	if !ok {
		return [2]int{}, fmt.Errorf("invalid python_version %q: expected major.minor", c.PythonVersion)
	}
	ma, err := strconv.Atoi(major)
	if err != nil {
		return [2]int{}, fmt.Errorf("invalid python_version %q: %w", c.PythonVersion, err)
	}
	mi, err := strconv.Atoi(minor)
	if err != nil {
		return [2]int{}, fmt.Errorf("invalid python_version %q: %w", c.PythonVersion, err)
	}
	return [2]int{ma, mi}, nil
}

func (c *Config) validate() error {
	if _, err := c.Version(); err != nil {
		return err
	}
	if c.MaxUnionExpansion < 1 {
		return fmt.Errorf("max_union_expansion must be positive, got %d", c.MaxUnionExpansion)
	}
	if c.MaxLoopIterations < 1 {
		return fmt.Errorf("max_loop_iterations must be positive, got %d", c.MaxLoopIterations)
	}
	if c.MaxUnionMembers < 2 {
		return fmt.Errorf("max_union_members must be at least 2, got %d", c.MaxUnionMembers)
	}
	return nil
}

// LoadConfig reads a typhon.toml or pyproject.toml file. Keys missing from
// the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	config.Dir = filepath.Dir(path)
	if filepath.Base(path) == "pyproject.toml" {
		doc := struct {
			Tool struct {
				Typhon *Config `toml:"typhon"`
			} `toml:"tool"`
		}{}
		doc.Tool.Typhon = config
		if _, err := toml.DecodeFile(path, &doc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// FindConfig searches for typhon.toml, or a pyproject.toml with a
// [tool.typhon] table, starting from dir and walking up to parent
// directories. Returns ("", nil, nil) if none is found.
func FindConfig(dir string) (string, *Config, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", nil, err
	}
	for {
		path := filepath.Join(dir, "typhon.toml")
		if _, err := os.Stat(path); err == nil {
			config, err := LoadConfig(path)
			if err != nil {
				return "", nil, err
			}
			return path, config, nil
		}

		path = filepath.Join(dir, "pyproject.toml")
		if ok, err := hasTyphonTable(path); err != nil {
			return "", nil, err
		} else if ok {
			config, err := LoadConfig(path)
			if err != nil {
				return "", nil, err
			}
			return path, config, nil
		}

		// Stop at .git boundary
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return "", nil, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil, nil
		}
		dir = parent
	}
}

func hasTyphonTable(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		return false, nil
	}
	var doc map[string]any
	md, err := toml.DecodeFile(path, &doc)
	if err != nil {
		return false, fmt.Errorf("parsing %s: %w", path, err)
	}
	return md.IsDefined("tool", "typhon"), nil
}
