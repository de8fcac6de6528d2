package pipe

import (
	"testing"

	"sockhttp/transport"
	"sockhttp/transport/test"

	"github.com/stretchr/testify/suite"
)

type PipeTestSuite struct {
	test.ConnTestSuite
}

func TestPipeTestSuite(t *testing.T) {
	suite.Run(t, new(PipeTestSuite))
}

func (s *PipeTestSuite) SetupTest() {
	s.ConnTestSuite.SetupTest()
	s.C1, s.C2 = Pipe(
		transport.Addr{Host: "a", Port: 1},
		transport.Addr{Host: "b", Port: 2},
		s.Clock,
	)
}
