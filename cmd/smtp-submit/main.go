// Command smtp-submit reads a MIME message from stdin and submits it to a
// relay using blitiri.com.ar/go/smtpsend.
package main

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/docopt/docopt-go"

	"blitiri.com.ar/go/smtpsend"
	"blitiri.com.ar/go/smtpsend/config"
)

const usage = `smtp-submit: submit a message to an SMTP relay.

Usage:
  smtp-submit -c <config> --from=<addr> <to>...
  smtp-submit --host=<host> [--port=<port>] [--security=<mode>]
              [--user=<user>] [--password=<pass>] --from=<addr> <to>...
  smtp-submit -h | --help

Options:
  -c <config>          Path to a YAML submission profile.
  --host=<host>         Relay host to connect to.
  --port=<port>         Relay port [default: 0].
  --security=<mode>     One of none, starttls, starttls-required, wrapper [default: starttls].
  --user=<user>         SASL username.
  --password=<pass>      SASL password.
  --from=<addr>          Envelope sender address.
  -h --help              Show this help.

The message body is read from stdin.
`

func main() {
	args, err := docopt.ParseArgs(usage, os.Args[1:], "smtp-submit 1.0")
	notnil(err)

	dialer, err := dialerFromArgs(args)
	notnil(err)

	body, err := ioutil.ReadAll(os.Stdin)
	notnil(err)

	from, _ := args.String("--from")
	sender, err := smtpsend.ParseMailbox(from, false)
	notnil(err)

	toAddrs, _ := args["<to>"].([]string)
	recipients := make([]smtpsend.Mailbox, len(toAddrs))
	for i, addr := range toAddrs {
		m, err := smtpsend.ParseMailbox(addr, false)
		notnil(err)
		recipients[i] = m
	}

	env := &smtpsend.Envelope{
		Sender:     &sender,
		Recipients: recipients,
		Body:       func() ([]byte, error) { return body, nil },
	}

	snd := dialer.NewSender()
	defer snd.Close()

	reply, err := snd.Send(context.Background(), env)
	notnil(err)

	for _, rr := range reply.RecipientResults {
		fmt.Fprintf(os.Stderr, "%s: %s\n", rr.Mailbox, rr.Reply)
	}
	fmt.Println(reply)
}

func dialerFromArgs(args docopt.Opts) (*smtpsend.Dialer, error) {
	if cfgPath, _ := args.String("-c"); cfgPath != "" {
		profile, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		return profile.Dialer()
	}

	host, _ := args.String("--host")
	if host == "" {
		return nil, fmt.Errorf("either -c or --host is required")
	}

	d := smtpsend.NewDialer(host)

	if port, _ := args.Int("--port"); port != 0 {
		d.WithPort(fmt.Sprintf("%d", port))
	}

	mode, _ := args.String("--security")
	switch mode {
	case "none":
		d.WithSecurity(smtpsend.Security{Mode: smtpsend.SecurityNone})
	case "starttls-required":
		d.WithSecurity(smtpsend.Security{Mode: smtpsend.SecurityRequired})
	case "wrapper":
		d.WithSecurity(smtpsend.Security{Mode: smtpsend.SecurityWrapper})
	default:
		d.WithSecurity(smtpsend.Security{Mode: smtpsend.SecurityOpportunistic})
	}

	if user, _ := args.String("--user"); user != "" {
		password, _ := args.String("--password")
		d.WithCredentials(smtpsend.Credentials{User: user, Secret: password})
	}

	return d, nil
}

func notnil(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "smtp-submit:", err)
		os.Exit(1)
	}
}
