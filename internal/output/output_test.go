package output

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames(t *testing.T) {
	metadataName, dataName := Names("adb.collection", 7)
	assert.Equal(t, "adb.collection.0007.json.encryption.json", metadataName)
	assert.Equal(t, "adb.collection.0007.json.gz.enc", dataName)

	metadataName, dataName = Names("db.core.addressDeclaration-archived", 12345)
	assert.Equal(t, "db.core.addressDeclaration-archived.12345.json.encryption.json", metadataName)
	assert.Equal(t, "db.core.addressDeclaration-archived.12345.json.gz.enc", dataName)
}

func TestLocalSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	sink, err := NewLocalSink(dir)
	require.NoError(t, err)
	defer sink.Close()

	ctx := context.Background()
	require.NoError(t, sink.Write(ctx, "b.0000.json.gz.enc", []byte("data")))
	require.NoError(t, sink.Write(ctx, "a.0000.json.encryption.json", []byte("{}")))

	// overwrite replaces content
	require.NoError(t, sink.Write(ctx, "b.0000.json.gz.enc", []byte("data-2")))

	names, err := sink.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.0000.json.encryption.json", "b.0000.json.gz.enc"}, names)

	data, err := sink.Read(ctx, "b.0000.json.gz.enc")
	require.NoError(t, err)
	assert.Equal(t, []byte("data-2"), data)

	assert.Equal(t, "file://"+filepath.Join(dir, "b.0000.json.gz.enc"), sink.URI("b.0000.json.gz.enc"))
}

func TestLocalSink_WriteFailure(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewLocalSink(dir)
	require.NoError(t, err)

	// a directory where the temp file should go makes the write fail
	require.NoError(t, os.Mkdir(filepath.Join(dir, "x.tmp"), 0755))
	err = sink.Write(context.Background(), "x", []byte("data"))
	assert.ErrorIs(t, err, ErrFileWriteFailed)

	_, err = NewLocalSink("")
	assert.Error(t, err)
}

func TestBlobSink_Mem(t *testing.T) {
	ctx := context.Background()
	sink, err := OpenBlobSink(ctx, "mem://", "fixtures/")
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Write(ctx, "db.c.0000.json.gz.enc", []byte("cipher")))
	require.NoError(t, sink.Write(ctx, "db.c.0000.json.encryption.json", []byte("{}")))

	names, err := sink.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"db.c.0000.json.encryption.json", "db.c.0000.json.gz.enc"}, names)

	data, err := sink.Read(ctx, "db.c.0000.json.gz.enc")
	require.NoError(t, err)
	assert.Equal(t, []byte("cipher"), data)

	assert.Equal(t, "mem://fixtures/db.c.0000.json.gz.enc", sink.URI("db.c.0000.json.gz.enc"))
}

func TestBlobSink_File(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	sink, err := New(ctx, Config{Type: "blob", URL: "file://" + dir})
	require.NoError(t, err)
	require.NoError(t, sink.Write(ctx, "a.0000.json.gz.enc", []byte("payload")))
	require.NoError(t, sink.Close())

	content, err := os.ReadFile(filepath.Join(dir, "a.0000.json.gz.enc"))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), content)

	source, err := OpenSource(ctx, "file://"+dir)
	require.NoError(t, err)
	defer source.Close()

	names, err := source.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.0000.json.gz.enc"}, names)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	sink, err := New(ctx, Config{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalSink{}, sink)

	_, err = New(ctx, Config{Type: "ftp"})
	assert.Error(t, err)

	_, err = New(ctx, Config{Type: "s3"})
	assert.Error(t, err)

	source, err := OpenSource(ctx, t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &LocalSink{}, source)
}

func TestDataEncoding(t *testing.T) {
	raw, err := ParseDataEncoding("")
	require.NoError(t, err)
	assert.Equal(t, EncodingRaw, raw)
	assert.Equal(t, []byte{0, 1, 2}, raw.Wrap([]byte{0, 1, 2}))

	b64, err := ParseDataEncoding("BASE64")
	require.NoError(t, err)
	wrapped := b64.Wrap([]byte{0xff, 0x00, 0x10})
	assert.Equal(t, "/wAQ", string(wrapped))

	unwrapped, err := b64.Unwrap(append(wrapped, '\n'))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0x00, 0x10}, unwrapped)

	_, err = b64.Unwrap([]byte("not base64!"))
	assert.Error(t, err)

	_, err = ParseDataEncoding("hex")
	assert.Error(t, err)
}
