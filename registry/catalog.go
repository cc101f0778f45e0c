package registry

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/tool"
	"gopkg.in/yaml.v3"
)

// Catalog is the YAML document describing declaratively configured tools.
//
//	tools:
//	  - kind: http
//	    name: news
//	    category: information
//	    priority: 60
//	    triggers: [news, headlines]
//	    description: Latest news headlines
//	    side_effect_free: true
//	    http:
//	      url: https://news.example.com/search
//	      result_path: summary
//	  - kind: clock
//	  - kind: document
type Catalog struct {
	Tools []CatalogEntry `yaml:"tools"`
}

// CatalogEntry is one tool in a catalog. Metadata fields are inlined; for
// clock and document entries only name is honoured.
type CatalogEntry struct {
	Kind              tool.Kind `yaml:"kind"`
	core.ToolMetadata `yaml:",inline"`
	HTTP              *tool.HTTPConfig `yaml:"http,omitempty"`
}

// CatalogOptions supply the collaborators catalog tools are built with.
type CatalogOptions struct {
	Documents  tool.DocumentStore
	HTTPClient *resty.Client
}

// ParseCatalog decodes a YAML catalog into capabilities.
func ParseCatalog(data []byte, optFns ...func(o *CatalogOptions)) ([]tool.Capability, error) {
	opts := CatalogOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Documents == nil {
		opts.Documents = tool.NewMemoryDocumentStore()
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	validate := validator.New()
	caps := make([]tool.Capability, 0, len(cat.Tools))
	for i, entry := range cat.Tools {
		switch entry.Kind {
		case tool.KindHTTP:
			if entry.HTTP == nil {
				return nil, fmt.Errorf("catalog entry %d (%s): http section missing", i, entry.Name)
			}
			if err := validate.Struct(entry.HTTP); err != nil {
				return nil, fmt.Errorf("catalog entry %d (%s): %w", i, entry.Name, err)
			}
			caps = append(caps, tool.NewHTTPTool(entry.ToolMetadata, *entry.HTTP, opts.HTTPClient))
		case tool.KindClock:
			name := entry.Name
			caps = append(caps, tool.NewClockTool(func(o *tool.ClockOptions) {
				if name != "" {
					o.Name = name
				}
			}))
		case tool.KindDocument:
			name := entry.Name
			caps = append(caps, tool.NewDocumentTool(opts.Documents, func(o *tool.DocumentOptions) {
				if name != "" {
					o.Name = name
				}
			}))
		default:
			return nil, fmt.Errorf("catalog entry %d (%s): unsupported kind %q", i, entry.Name, entry.Kind)
		}
	}
	return caps, nil
}

// LoadCatalog reads the catalog at path and registers every tool it declares.
func (r *Registry) LoadCatalog(path string, optFns ...func(o *CatalogOptions)) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	caps, err := ParseCatalog(data, optFns...)
	if err != nil {
		return err
	}
	for _, c := range caps {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	r.logger.Info("registry.catalog.loaded", "path", path, "tools", len(caps))
	return nil
}
