// Command smtp-doctor is a diagnostic tool for checking whether a domain's
// mail setup is reachable by blitiri.com.ar/go/smtpsend: it resolves MX
// records, probes each one for STARTTLS support and reports the
// negotiated TLS parameters, and runs an SPF check of each MX address
// against the domain's SPF policy.
//
// Not for use in production, just development and troubleshooting.
package main

import (
	"crypto/tls"
	"flag"
	"log"
	"net"
	"time"

	"golang.org/x/net/idna"

	"blitiri.com.ar/go/spf"

	"blitiri.com.ar/go/smtpsend/internal/envelope"
	"blitiri.com.ar/go/smtpsend/internal/smtp"
	"blitiri.com.ar/go/smtpsend/internal/tlsconst"
)

var (
	port = flag.String("port", "25",
		"port to use for connecting to the MX servers")
	skipTLSCheck = flag.Bool("skip_tls_check", false,
		"skip the STARTTLS probe (useful if connections are blocked)")
	helloName = flag.String("hello_name", "localhost",
		"client identity to send in EHLO")
)

func main() {
	flag.Parse()

	domain := flag.Arg(0)
	if domain == "" {
		log.Fatal("Use: smtp-doctor <domain>")
	}

	domain, err := idna.ToASCII(domain)
	if err != nil {
		log.Fatalf("IDNA conversion failed: %v", err)
	}

	mxs, err := net.LookupMX(domain)
	if err != nil {
		log.Fatalf("MX lookup: %v", err)
	}
	if len(mxs) == 0 {
		log.Fatalf("MX lookup returned no results")
	}

	// The default "localhost" is used as-is, like the library's own default.
	clientID := envelope.ClientId(*helloName)
	if *helloName != "localhost" {
		clientID, err = envelope.ParseClientId(*helloName)
		if err != nil {
			log.Fatalf("invalid hello_name: %v", err)
		}
	}

	for _, mx := range mxs {
		log.Printf("=== Testing MX: %2d  %s", mx.Pref, mx.Host)

		ips, err := net.LookupIP(mx.Host)
		if err != nil {
			log.Printf("IP lookup failed: %v", err)
			continue
		}
		for _, ip := range ips {
			result, err := spf.CheckHost(ip, domain)
			if result != spf.Pass {
				log.Printf("SPF check != pass for IP %s: %s - %s", ip, result, err)
			}
		}

		if *skipTLSCheck {
			log.Printf("STARTTLS probe skipped")
			continue
		}
		probeStartTLS(mx.Host, clientID)
		log.Printf("")
	}

	log.Printf("=== Success")
}

func probeStartTLS(host string, clientID envelope.ClientId) {
	cfg := smtp.ClientConfig{
		HelloName:  clientID,
		Security:   smtp.Security{Mode: smtp.SecurityOpportunistic, Config: &tls.Config{ServerName: host}},
		ServerName: host,
		Timeouts:   smtp.Timeouts{Connect: 10 * time.Second, Read: 10 * time.Second, Write: 10 * time.Second, Data: 10 * time.Second},
	}

	c, err := smtp.Dial(net.JoinHostPort(host, *port), cfg)
	if err != nil {
		log.Printf("connect/handshake failed: %v", err)
		return
	}
	defer c.Close()

	// After a successful upgrade the extension set comes from the
	// post-TLS EHLO, which need not list STARTTLS again, so check the
	// connection itself first.
	state, ok := c.TLSConnectionState()
	if !ok {
		if !c.Extensions().StartTLS {
			log.Printf("server does not advertise STARTTLS")
		} else {
			log.Printf("STARTTLS advertised but upgrade did not happen")
		}
		return
	}

	log.Printf("TLS OK: %s - %s", tlsconst.VersionName(state.Version),
		tlsconst.CipherSuiteName(state.CipherSuite))
}
