package ingest

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type zipEntry struct {
	name    string
	data    []byte
	corrupt bool
}

func newTestZip(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		if e.corrupt {
			// An unregistered compression method makes Open fail for this entry only.
			w, err := zw.CreateRaw(&zip.FileHeader{
				Name:               e.name,
				Method:             99,
				CompressedSize64:   uint64(len(e.data)),
				UncompressedSize64: uint64(len(e.data)),
			})
			require.NoError(t, err)
			_, err = w.Write(e.data)
			require.NoError(t, err)
			continue
		}
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write(e.data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

var binaryBlob = []byte{0x89, 0xff, 0xfe, 0x00, 0xc3, 0x28}

func TestWalkArchive_Statuses(t *testing.T) {
	data := newTestZip(t,
		zipEntry{name: "src/"},
		zipEntry{name: "src/a.py", data: []byte("print('salaam')\n")},
		zipEntry{name: "notes.cfg", data: []byte("key=value")},
		zipEntry{name: "img.bin", data: binaryBlob},
		zipEntry{name: "broken.txt", data: []byte("xx"), corrupt: true},
		zipEntry{name: "latin1.txt", data: []byte{'c', 0xe7, 'a'}},
	)

	results, err := WalkArchive(data)
	require.NoError(t, err)
	require.Len(t, results, 5)

	assert.Equal(t, "src/a.py", results[0].Name)
	assert.Equal(t, EntryText, results[0].Status)
	assert.Equal(t, "print('salaam')\n", results[0].Text)

	assert.Equal(t, EntryUnknownText, results[1].Status)
	assert.Equal(t, "key=value", results[1].Text)

	assert.Equal(t, EntryBinarySkipped, results[2].Status)
	assert.Empty(t, results[2].Text)

	assert.Equal(t, EntryFailed, results[3].Status)
	assert.ErrorIs(t, results[3].Err, zip.ErrAlgorithm)

	assert.Equal(t, EntryFailed, results[4].Status)
	assert.ErrorIs(t, results[4].Err, ErrDecodeFailure)
}

func TestWalkArchive_EntryTooLarge(t *testing.T) {
	data := newTestZip(t,
		zipEntry{name: "big.txt", data: bytes.Repeat([]byte("a"), 64)},
		zipEntry{name: "small.txt", data: []byte("ok")},
	)

	results, err := WalkArchive(data, WithMaxEntrySize(16))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, ErrEntryTooLarge)
	assert.Equal(t, EntryText, results[1].Status)
}

func TestWalkArchive_NotAZip(t *testing.T) {
	_, err := WalkArchive([]byte("nope"))
	assert.ErrorIs(t, err, ErrDecodeFailure)
}

func TestRenderArchive(t *testing.T) {
	data := newTestZip(t,
		zipEntry{name: "a.py", data: []byte("x = 1")},
		zipEntry{name: "img.bin", data: binaryBlob},
	)
	results, err := WalkArchive(data)
	require.NoError(t, err)

	out := RenderArchive(results)
	assert.Equal(t, "ZIP Contents:\n\n📄 a.py:\nx = 1\n\n⚠️ Binary file ignored: img.bin\n", out)
}

func TestRenderArchive_OneSectionPerEntry(t *testing.T) {
	entries := []zipEntry{
		{name: "one.txt", data: []byte("1")},
		{name: "two.dat", data: binaryBlob},
		{name: "three.json", data: []byte("{}"), corrupt: true},
		{name: "four.md", data: []byte("# four")},
		{name: "five.sql", data: []byte("select 1;"), corrupt: true},
	}
	results, err := WalkArchive(newTestZip(t, entries...))
	require.NoError(t, err)

	out := RenderArchive(results)
	sections := strings.Count(out, "\n📄 ") + strings.Count(out, "\n⚠️ ") + strings.Count(out, "\n❌ ")
	assert.Equal(t, len(entries), sections)
	assert.Contains(t, out, "\n📄 four.md (unknown extension):\n# four\n")
	assert.Contains(t, out, "\n❌ Error reading three.json: ")
}
