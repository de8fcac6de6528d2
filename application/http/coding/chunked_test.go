package coding

import (
	"bytes"
	"io"
	"testing"

	"sockhttp/application/http"

	"github.com/stretchr/testify/suite"
)

type ChunkedTestSuite struct {
	suite.Suite
}

func TestChunkedTestSuite(t *testing.T) {
	suite.Run(t, new(ChunkedTestSuite))
}

func (s *ChunkedTestSuite) TestRead() {
	input := []byte("" +
		"5;ext=foo\r\n" +
		"ABCDE\r\n" +
		"a\r\n" +
		"FGHIJKLNMO\r\n" +
		"0\r\n" + // last chunk
		"Hello: World\r\n" + // trailer
		"\r\n",
	)

	trailers := make([]http.Field, 0)
	cr := NewChunkedReader(bytes.NewReader(input), &trailers)

	buf := make([]byte, 2)
	n, err := cr.Read(buf)
	s.Require().NoError(err)
	s.Equal([]byte("AB"), buf[:n])

	buf = make([]byte, 10)
	n, err = cr.Read(buf)
	s.Require().NoError(err)
	s.Equal([]byte("CDE"), buf[:n])

	n, err = cr.Read(buf)
	s.Require().NoError(err)
	s.Equal([]byte("FGHIJKLNMO"), buf[:n])

	n, err = cr.Read(buf)
	s.Require().ErrorIs(err, io.EOF)
	s.Zero(n)

	s.Equal([]http.Field{{Name: []byte("Hello"), Value: []byte("World")}}, trailers)
}

func (s *ChunkedTestSuite) TestReadMalformed() {
	testcases := []struct {
		desc  string
		input string
	}{
		{desc: "not hex", input: "zz\r\nabc\r\n0\r\n\r\n"},
		{desc: "missing delimiter", input: "3\r\nabcX\r\n0\r\n\r\n"},
		{desc: "truncated", input: "5\r\nab"},
		{desc: "sole LF", input: "3\nabc\r\n0\r\n\r\n"},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			_, err := io.ReadAll(NewChunkedReader(bytes.NewReader([]byte(tc.input)), nil))
			s.Error(err)
		})
	}
}

func (s *ChunkedTestSuite) TestWriteThenRead() {
	buf := bytes.NewBuffer(nil)
	trailers := []http.Field{{Name: []byte("Expires"), Value: []byte("never")}}

	cw := NewChunkedWriter(buf, &trailers)
	for _, part := range []string{"Hello, ", "", "World"} {
		_, err := cw.Write([]byte(part))
		s.Require().NoError(err)
	}
	s.Require().NoError(cw.Close())

	s.Equal("7\r\nHello, \r\n5\r\nWorld\r\n0\r\nExpires: never\r\n\r\n", buf.String())

	out, err := Dechunk(buf.Bytes())
	s.Require().NoError(err)
	s.Equal([]byte("Hello, World"), out)
}

func (s *ChunkedTestSuite) TestDechunkError() {
	_, err := Dechunk([]byte("5\r\nab"))
	s.ErrorIs(err, ErrDecode)
}
