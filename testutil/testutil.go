package testutil

import (
	"github.com/autom8ter/docq"
	"github.com/brianvoe/gofakeit/v6"

	_ "embed"
)

var (
	//go:embed testdata/person.yaml
	PersonSchema string
	//go:embed testdata/blog_post.yaml
	BlogPostSchema string
	// AllSchemas are the contents of every test schema
	AllSchemas = []string{PersonSchema, BlogPostSchema}
)

// NewCatalog returns a catalog holding every test schema. It panics if a schema is invalid.
func NewCatalog(opts ...docq.SchemaOption) *docq.Catalog {
	var contents [][]byte
	for _, s := range AllSchemas {
		contents = append(contents, []byte(s))
	}
	c, err := docq.LoadCatalog(contents, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Person returns the person schema of a new catalog
func Person(opts ...docq.SchemaOption) docq.Schema {
	return NewCatalog(opts...).MustGet("person")
}

// BlogPost returns the blog_post schema of a new catalog
func BlogPost(opts ...docq.SchemaOption) docq.Schema {
	return NewCatalog(opts...).MustGet("blog_post")
}

// NewPersonDoc returns a person document in storage form. The values override generated ones.
func NewPersonDoc(values map[string]any) *docq.Document {
	doc, err := docq.NewDocumentFrom(map[string]any{
		"_id":          gofakeit.UUID(),
		"name":         gofakeit.Name(),
		"age":          gofakeit.IntRange(0, 100),
		"emailAddress": gofakeit.Email(),
		"friend": map[string]any{
			"name": gofakeit.Name(),
			"age":  gofakeit.IntRange(0, 100),
		},
		"tags": []string{gofakeit.HackerNoun(), gofakeit.HackerVerb()},
		"addresses": []map[string]any{
			{
				"city":        gofakeit.City(),
				"postal_code": gofakeit.Zip(),
			},
		},
		"info": map[string]any{
			"language": gofakeit.Language(),
		},
		"location": []float64{gofakeit.Longitude(), gofakeit.Latitude()},
	})
	if err != nil {
		panic(err)
	}
	if err := doc.SetAll(values); err != nil {
		panic(err)
	}
	return doc
}

// NewBlogPostDoc returns a blog post document in storage form. The values override generated ones.
func NewBlogPostDoc(values map[string]any) *docq.Document {
	doc, err := docq.NewDocumentFrom(map[string]any{
		"_id":       gofakeit.Sentence(4),
		"body":      gofakeit.Paragraph(1, 3, 12, " "),
		"published": gofakeit.Bool(),
		"author":    gofakeit.UUID(),
		"postComments": []map[string]any{
			{
				"commentContent": gofakeit.Sentence(8),
				"author":         gofakeit.Name(),
			},
		},
	})
	if err != nil {
		panic(err)
	}
	if err := doc.SetAll(values); err != nil {
		panic(err)
	}
	return doc
}
