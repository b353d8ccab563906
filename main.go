package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	yaml "gopkg.in/yaml.v2"

	"github.com/ptgott/envelope/email"
	"github.com/ptgott/envelope/transport"
	"github.com/ptgott/envelope/userconfig"
)

func main() {
	// Log with filename and line number. This writes to stderr, so it should
	// be thread safe.
	// https://github.com/rs/zerolog/blob/7ccd4c940bf8a02fcc5f10e5475f9d3daff04d57/log/log.go#L13
	log.Logger = log.With().Caller().Logger()

	configPath := flag.String(
		"config",
		"./config.yaml",
		"path to a JSON or YAML file containing your configuration",
	)
	level := flag.String(
		"level",
		"info",
		`log level: "info", "debug", or "warn"`,
	)
	subject := flag.String("subject", "", "subject of the message")
	text := flag.String("text", "", "plain text body")
	htmlBody := flag.String("html", "", "HTML body, sent as an alternative to the plain text body")
	batchPath := flag.String(
		"batch",
		"",
		"path to a YAML list of addresses. Each one gets its own copy of the message and -to, -cc and -bcc are ignored",
	)
	var to, cc, bcc, from addressFlag
	var attach filesFlag
	flag.Var(&to, "to", "recipient addresses, comma-separated (repeatable)")
	flag.Var(&cc, "cc", "carbon copy addresses, comma-separated (repeatable)")
	flag.Var(&bcc, "bcc", "blind carbon copy addresses, comma-separated (repeatable)")
	flag.Var(&from, "from", "from addresses, overriding the configured defaults")
	flag.Var(&attach, "attach", "path to a file to attach (repeatable)")
	flag.Parse()

	switch *level {
	case "debug":
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	case "warn":
		log.Logger = log.Logger.Level(zerolog.WarnLevel)
	default:
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	// Cancel in-flight deliveries on an interrupt rather than exiting in the
	// middle of an SMTP session.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Info().
		Str("configPath", *configPath).
		Msg("starting the application")

	f, err := os.Open(*configPath)
	if err != nil {
		log.Error().
			Str("config-path", *configPath).
			Err(err).
			Msg("We can't open the application config file")
		os.Exit(1)
	}

	config, err := userconfig.Parse(f)
	f.Close()
	if err != nil {
		log.Error().
			Err(err).
			Msg("Problem parsing your config")
		os.Exit(1)
	}

	checkedConfig, err := config.CheckAndSetDefaults()
	if err != nil {
		log.Error().
			Err(err).
			Msg("Problem validating your config")
		os.Exit(1)
	}

	log.Info().
		Str("configPath", *configPath).
		Str("driver", string(checkedConfig.Email.Driver)).
		Msg("successfully validated the config")

	// The only place a transport is created. Everything below shares it.
	factory := transport.NewFactory(checkedConfig.Email)
	mailer := email.New(
		factory,
		email.WithDefaultFrom(checkedConfig.Defaults.From),
		email.WithConcurrency(checkedConfig.Batch.Concurrency),
	)

	msg := email.Compose(*subject, *text, "")
	if *htmlBody != "" {
		msg.SetBody(*htmlBody, "text/html")
	}
	msg.AddSenders(from.list, email.From)
	checkedConfig.Defaults.Apply(msg)

	for _, p := range attach {
		if err := msg.AttachFile(p); err != nil {
			log.Error().
				Err(err).
				Msg("Problem attaching a file")
			os.Exit(1)
		}
	}

	var res email.Result
	if *batchPath != "" {
		rcpts, err := readBatch(*batchPath)
		if err != nil {
			log.Error().
				Err(err).
				Str("batch-path", *batchPath).
				Msg("Problem reading the batch recipients")
			os.Exit(1)
		}
		res, err = mailer.SendBatch(ctx, msg, rcpts)
		exitOnSendError(err)
	} else {
		msg.AddRecipients(to.list, email.To).
			AddRecipients(cc.list, email.Cc).
			AddRecipients(bcc.list, email.Bcc)
		res, err = mailer.Send(ctx, msg)
		exitOnSendError(err)
	}

	if err := res.Err(); err != nil {
		log.Error().
			Err(err).
			Int("sent", res.Sent).
			Msg("some recipients did not get the message")
		os.Exit(1)
	}

	log.Info().
		Int("sent", res.Sent).
		Msg("sent the message")
}

func exitOnSendError(err error) {
	if err == nil {
		return
	}
	var ce *email.ConfigError
	if errors.As(err, &ce) {
		log.Error().
			Err(err).
			Msg("Problem with the transport configuration")
	} else {
		log.Error().
			Err(err).
			Msg("Problem sending the message")
	}
	os.Exit(1)
}

// readBatch parses the batch recipients file at path.
func readBatch(path string) (email.AddressList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseBatch(f)
}

func parseBatch(r io.Reader) (email.AddressList, error) {
	var l email.AddressList
	if err := yaml.NewDecoder(r).Decode(&l); err != nil {
		return nil, fmt.Errorf("can't read the batch recipients as YAML: %v", err)
	}
	if len(l) == 0 {
		return nil, errors.New("the batch recipients file is empty")
	}
	return l, nil
}
