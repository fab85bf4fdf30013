package main

import (
	"io"
	"os"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/autom8ter/docq"
	"github.com/autom8ter/docq/errors"
)

const defaultTemplate = `{{ toPrettyJson . }}
`

type schemaFlags struct {
	schemas    []string
	collection string
	config     string
}

func (s *schemaFlags) load() (*docq.Compiler, error) {
	cfg := docq.DefaultConfig()
	if s.config != "" {
		bits, err := os.ReadFile(s.config)
		if err != nil {
			return nil, errors.Wrap(err, errors.Validation, "failed to read config")
		}
		cfg, err = docq.LoadConfig(bits)
		if err != nil {
			return nil, err
		}
	}
	if len(s.schemas) == 0 {
		return nil, errors.New(errors.Validation, "at least one --schema is required")
	}
	var contents [][]byte
	for _, path := range s.schemas {
		bits, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.Validation, "failed to read schema %s", path)
		}
		contents = append(contents, bits)
	}
	catalog, err := docq.LoadCatalog(contents, cfg.SchemaOptions()...)
	if err != nil {
		return nil, err
	}
	collection := s.collection
	if collection == "" {
		schemas := catalog.Schemas()
		if len(schemas) != 1 {
			return nil, errors.New(errors.Validation, "--collection is required with more than one schema")
		}
		collection = schemas[0].Name()
	}
	schema, ok := catalog.Get(collection)
	if !ok {
		return nil, errors.New(errors.NotFound, "collection not found: %s", collection)
	}
	logger, err := docq.NewLogger(cfg.LogLevel, map[string]any{"cmd": "docq"})
	if err != nil {
		return nil, err
	}
	return docq.NewCompiler(schema, docq.WithConfig(cfg), docq.WithLogger(logger)), nil
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func render(w io.Writer, tmpl string, data any) error {
	if tmpl == "" {
		tmpl = defaultTemplate
	}
	t, err := template.New("output").Funcs(sprig.TxtFuncMap()).Parse(tmpl)
	if err != nil {
		return errors.Wrap(err, errors.Validation, "invalid template")
	}
	return t.Execute(w, data)
}
