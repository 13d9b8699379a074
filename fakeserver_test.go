package smtpsend

import (
	"bufio"
	"crypto/tls"
	"net"
	"net/textproto"
	"sync"
	"testing"

	"blitiri.com.ar/go/smtpsend/internal/testlib"
)

// fakeServer is a real TCP listener scripted with canned responses, used to
// exercise the public Dialer/Sender path end to end. Grounded on the
// teacher's internal/courier/fakeserver_test.go FakeServer, which plays the
// same role for its own courier package.
type fakeServer struct {
	t         *testing.T
	tmpDir    string
	responses map[string]string
	wg        *sync.WaitGroup
	addr      string
	tlsConfig *tls.Config
}

func newFakeServer(t *testing.T, responses map[string]string) *fakeServer {
	s := &fakeServer{
		t:         t,
		tmpDir:    testlib.MustTempDir(t),
		responses: responses,
		wg:        &sync.WaitGroup{},
	}
	s.start()
	return s
}

func (s *fakeServer) cleanup() {
	testlib.RemoveIfOk(s.t, s.tmpDir)
}

func (s *fakeServer) initTLS() {
	var err error
	s.tlsConfig, err = testlib.GenerateCert(s.tmpDir)
	if err != nil {
		s.t.Fatalf("error generating cert: %v", err)
	}

	cert, err := tls.LoadX509KeyPair(s.tmpDir+"/cert.pem", s.tmpDir+"/key.pem")
	if err != nil {
		s.t.Fatalf("error loading temp cert: %v", err)
	}
	s.tlsConfig.Certificates = []tls.Certificate{cert}
}

func (s *fakeServer) start() {
	s.t.Helper()
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		s.t.Fatalf("fake server listen: %v", err)
	}
	s.addr = l.Addr().String()

	s.initTLS()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer l.Close()

		c, err := l.Accept()
		if err != nil {
			return
		}
		defer c.Close()

		r := textproto.NewReader(bufio.NewReader(c))
		c.Write([]byte(s.responses["_welcome"]))
		for {
			line, err := r.ReadLine()
			if err != nil {
				return
			}

			s.t.Logf("fakeServer read: %q", line)
			if line == "STARTTLS" && s.responses["_STARTTLS"] == "ok" {
				c.Write([]byte(s.responses["STARTTLS"]))

				tlssrv := tls.Server(c, s.tlsConfig)
				if err := tlssrv.Handshake(); err != nil {
					s.t.Logf("starttls handshake error: %v", err)
					return
				}

				c = tlssrv
				defer c.Close()
				r = textproto.NewReader(bufio.NewReader(c))
				continue
			}

			c.Write([]byte(s.responses[line]))
			if line == "DATA" {
				if _, err := r.ReadDotBytes(); err != nil {
					return
				}
				c.Write([]byte(s.responses["_DATA"]))
			}
		}
	}()
}

func (s *fakeServer) hostPort() (string, string) {
	return net.SplitHostPort(s.addr)
}

func (s *fakeServer) wait() {
	s.wg.Wait()
}
