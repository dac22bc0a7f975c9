package codec

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"etlrepo/internal/domain"
)

func scanAll(t *testing.T, doc string) ([]Fragment, *FragmentScanner) {
	t.Helper()
	sc := NewFragmentScanner(strings.NewReader(doc))
	var out []Fragment
	for sc.Next() {
		assert.Equal(t, StateObjectReady, sc.State())
		out = append(out, sc.Fragment())
	}
	return out, sc
}

func TestScannerRepositoryDocument(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<!-- exported -->
<repository>
  <transformations>
    <transformation><info><name>a</name></info></transformation>
    <transformation><info><name>b &amp; c</name></info><step><name>s</name></step></transformation>
  </transformations>
  <jobs>
    <job><name>j</name><entries><entry><name>e</name></entry></entries></job>
  </jobs>
</repository>`

	frags, sc := scanAll(t, doc)
	require.NoError(t, sc.Err())
	assert.Equal(t, StateDone, sc.State())
	require.Len(t, frags, 3)

	assert.Equal(t, domain.KindTransformation, frags[0].Kind)
	assert.Equal(t, 1, frags[0].Index)
	assert.Equal(t, "<transformation><info><name>a</name></info></transformation>", string(frags[0].Data))
	assert.Equal(t, "<transformation><info><name>b &amp; c</name></info><step><name>s</name></step></transformation>", string(frags[1].Data))
	assert.Equal(t, domain.KindJob, frags[2].Kind)
	assert.Equal(t, 3, frags[2].Index)
	assert.Equal(t, 3, sc.Count())
	assert.False(t, sc.Next())
}

func TestScannerSingleObjectDocument(t *testing.T) {
	frags, sc := scanAll(t, `<job><name>solo</name></job>`)
	require.NoError(t, sc.Err())
	require.Len(t, frags, 1)
	assert.Equal(t, domain.KindJob, frags[0].Kind)
}

func TestScannerIgnoresNestedAndForeignElements(t *testing.T) {
	doc := `<repository>
  <transformations>
    <transformation>
      <info><name>outer</name></info>
      <step><name>m</name><transformation>inner</transformation></step>
    </transformation>
  </transformations>
  <other><transformation><info><name>ignored</name></info></transformation></other>
  <jobs/>
</repository>`

	frags, sc := scanAll(t, doc)
	require.NoError(t, sc.Err())
	require.Len(t, frags, 1)
	assert.Contains(t, string(frags[0].Data), "<transformation>inner</transformation>")
	assert.NotContains(t, string(frags[0].Data), "ignored")
}

func TestScannerWarnsAboutMisplacedObjects(t *testing.T) {
	doc := `<repository>
  <transformation><info><name>loose</name></info></transformation>
  <jobs>
    <job><name>kept</name></job>
  </jobs>
  <job><name>stray</name></job>
</repository>`

	core, logs := observer.New(zap.WarnLevel)
	sc := NewFragmentScanner(strings.NewReader(doc), WithScannerLogger(zap.New(core)))
	var frags []Fragment
	for sc.Next() {
		frags = append(frags, sc.Fragment())
	}
	require.NoError(t, sc.Err())
	require.Len(t, frags, 1)
	assert.Contains(t, string(frags[0].Data), "kept")

	entries := logs.FilterMessage("skipping misplaced object element").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "transformation", entries[0].ContextMap()["element"])
	assert.Equal(t, "/repository", entries[0].ContextMap()["parent"])
	assert.Equal(t, "job", entries[1].ContextMap()["element"])
}

func TestScannerReescapesCharacterData(t *testing.T) {
	doc := `<transformation a="x&lt;y"><info><name>t</name></info>` +
		`<step><name>s</name><attributes><attribute code="sql" nr="0" type="String"><![CDATA[a < b & "c"]]></attribute></attributes></step>` +
		`</transformation>`

	frags, sc := scanAll(t, doc)
	require.NoError(t, sc.Err())
	require.Len(t, frags, 1)
	data := string(frags[0].Data)
	assert.True(t, strings.HasPrefix(data, `<transformation a="x&lt;y">`), data)
	assert.Contains(t, data, "a &lt; b &amp; &#34;c&#34;")

	got, err := NewXMLCodec().DecodeTransformation(frags[0].Data)
	require.NoError(t, err)
	assert.Equal(t, `a < b & "c"`, got.Step("s").Attributes.String("sql", 0, ""))
}

func TestScannerSyntaxErrorAborts(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		count int
	}{
		{"mismatched tag", `<repository><transformations><transformation><info></name></transformation>`, 0},
		{"after a good fragment", `<repository><jobs><job><name>a</name></job><job><name>b</job></jobs></repository>`, 1},
		{"bad entity", `<job><name>&bogus;</name></job>`, 0},
		{"truncated inside fragment", `<repository><jobs><job><name>a</name>`, 0},
		{"truncated after fragment", `<repository><jobs><job><name>a</name></job>`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frags, sc := scanAll(t, tt.doc)
			assert.Len(t, frags, tt.count)
			require.Error(t, sc.Err())
			assert.True(t, errors.Is(sc.Err(), domain.ErrMalformedFragment))
			var mf *domain.MalformedFragmentError
			require.ErrorAs(t, sc.Err(), &mf)
			assert.Equal(t, tt.count+1, mf.Index)
			assert.Equal(t, StateAborted, sc.State())
			assert.False(t, sc.Next())
		})
	}
}

func TestScannerAbort(t *testing.T) {
	doc := `<repository><jobs><job><name>a</name></job><job><name>b</name></job></jobs></repository>`
	sc := NewFragmentScanner(strings.NewReader(doc))
	require.True(t, sc.Next())
	sc.Abort()
	assert.Equal(t, StateAborted, sc.State())
	assert.False(t, sc.Next())
	assert.NoError(t, sc.Err())
	assert.Equal(t, 1, sc.Count())
}

func TestScannerStateNames(t *testing.T) {
	for state, want := range map[ScanState]string{
		StateIdle:        "idle",
		StateStreaming:   "streaming",
		StateObjectReady: "object-ready",
		StateAborted:     "aborted",
		StateDone:        "done",
		ScanState(99):    "unknown",
	} {
		assert.Equal(t, want, state.String())
	}
}

func TestWriterScannerRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewRepositoryWriter(&buf)
	require.NoError(t, w.Write(sampleTransformation()))
	require.NoError(t, w.Write(sampleJob()))
	require.NoError(t, w.Close())
	assert.Equal(t, 2, w.Written())
	assert.Equal(t, int64(buf.Len()), w.Bytes())
	assert.True(t, strings.HasPrefix(buf.String(), Header+"<repository>\n  <transformations>\n"))
	assert.True(t, strings.HasSuffix(buf.String(), "  </jobs>\n</repository>\n"))

	frags, sc := scanAll(t, buf.String())
	require.NoError(t, sc.Err())
	require.Len(t, frags, 2)

	codec := NewXMLCodec()
	tr, err := codec.Decode(frags[0].Data)
	require.NoError(t, err)
	assert.Equal(t, "load_orders", tr.ObjectName())
	assert.Len(t, tr.(*domain.Transformation).Steps, 3)

	job, err := codec.Decode(frags[1].Data)
	require.NoError(t, err)
	assert.Equal(t, "nightly", job.ObjectName())
	assert.Equal(t, "/etl", job.Directory())
}

func TestWriterEmptyDocument(t *testing.T) {
	var buf bytes.Buffer
	w := NewRepositoryWriter(&buf)
	require.NoError(t, w.Close())
	assert.Equal(t, Header+"<repository>\n  <transformations>\n  </transformations>\n  <jobs>\n  </jobs>\n</repository>\n", buf.String())

	frags, sc := scanAll(t, buf.String())
	require.NoError(t, sc.Err())
	assert.Empty(t, frags)
}

func TestWriterSkipsObjectWithInvalidCharacters(t *testing.T) {
	var buf bytes.Buffer
	w := NewRepositoryWriter(&buf)
	bad := sampleTransformation()
	bad.Description = "bell\x07"
	err := w.Write(bad)
	var encErr *EncodeError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "load_orders", encErr.Name)
	assert.Zero(t, w.Written())

	require.NoError(t, w.Write(sampleJob()))
	require.NoError(t, w.Close())
	frags, sc := scanAll(t, buf.String())
	require.NoError(t, sc.Err())
	require.Len(t, frags, 1)
	assert.Equal(t, domain.KindJob, frags[0].Kind)
}

func TestWriterOrdering(t *testing.T) {
	var buf bytes.Buffer
	w := NewRepositoryWriter(&buf)
	require.NoError(t, w.Write(sampleJob()))
	err := w.Write(sampleTransformation())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after the transformations collection was closed")
	assert.Equal(t, 1, w.Written())
}

func TestWriterSkipsUnencodableObject(t *testing.T) {
	var buf bytes.Buffer
	w := NewRepositoryWriter(&buf)
	require.NoError(t, w.Write(sampleTransformation()))
	before := buf.Len()

	err := w.Write(notAFragment{domain.NewJob("x", "/")})
	var encErr *EncodeError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, before, buf.Len())

	require.NoError(t, w.Write(sampleJob()))
	require.NoError(t, w.Close())
	frags, sc := scanAll(t, buf.String())
	require.NoError(t, sc.Err())
	assert.Len(t, frags, 2)
}
