package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalDocumentID(t *testing.T) {
	assert.Equal(t, "doc-ab12cd34", CanonicalDocumentID("DOC_AB12CD34"))
	assert.Equal(t, "doc-ab12cd34", CanonicalDocumentID(" doc-ab12cd34 "))
	assert.Equal(t, "report-7", CanonicalDocumentID("Report-7"))
}

func TestDocumentRefs(t *testing.T) {
	refs := DocumentRefs("compare doc_abc12345 with DOC-abc12345 and doc-ffff0000, not doc-12")
	assert.Equal(t, []string{"doc-abc12345", "doc-ffff0000"}, refs)

	assert.Empty(t, DocumentRefs("no references"))
}
