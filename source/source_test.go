package source

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "source-test-*.mp4")
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func TestOpenAndSize(t *testing.T) {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i)
	}
	path := writeTempFile(t, data)

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, int64(len(data)), s.Size())
}

func TestMapMovie(t *testing.T) {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i)
	}
	path := writeTempFile(t, data)

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	region, err := s.MapMovie(100, 200)
	require.NoError(t, err)
	assert.Equal(t, data[100:200], region)
}

func TestMapMovieOutOfRange(t *testing.T) {
	path := writeTempFile(t, make([]byte, 10))
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.MapMovie(0, 100)
	require.Error(t, err)
}

func TestReadRequestsCoalescesAndFills(t *testing.T) {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := writeTempFile(t, data)

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	bufA := make([]byte, 16)
	bufB := make([]byte, 16)
	bufC := make([]byte, 16)
	reqs := []ReadRequest{
		{Offset: 0, Buf: bufA},
		{Offset: 16, Buf: bufB}, // adjacent to bufA, same group
		{Offset: 3000, Buf: bufC},
	}

	require.NoError(t, s.ReadRequests(context.Background(), reqs))

	assert.Equal(t, data[0:16], bufA)
	assert.Equal(t, data[16:32], bufB)
	assert.Equal(t, data[3000:3016], bufC)
}

func TestReadRequestsEmpty(t *testing.T) {
	path := writeTempFile(t, make([]byte, 10))
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.ReadRequests(context.Background(), nil))
}
