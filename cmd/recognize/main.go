// Command recognize sends one recording to the speech service and prints
// the recognition result as JSON.
//
//	recognize -file hello.wav
//	recognize -file hello.pcm -sample-rate 16000 -output detailed
//	recognize -url https://example.com/hello.wav
//
// Credentials and endpoints come from the same environment as the server
// (SPEECH_SUBSCRIPTION_KEY and friends); flags override the request options.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cavaliergopher/grab/v3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/goccy/go-json"

	"github.com/lexiqai/speech-client/internal/config"
	"github.com/lexiqai/speech-client/internal/observability"
	"github.com/lexiqai/speech-client/pkg/speech"
)

type options struct {
	file       string
	url        string
	sampleRate int
	channels   int
	bits       int
	output     string
	mode       string
	profanity  string
	language   string
	authMode   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "recognize: %v\n", err)
		if speech.IsAuthFailure(err) {
			fmt.Fprintln(os.Stderr, "check SPEECH_SUBSCRIPTION_KEY")
		}
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("recognize", flag.ContinueOnError)
	fs.StringVar(&opts.file, "file", "", "path of a WAV or raw PCM recording")
	fs.StringVar(&opts.url, "url", "", "download the recording from this URL first")
	fs.IntVar(&opts.sampleRate, "sample-rate", 0, "sample rate of raw PCM input; adds a WAV header")
	fs.IntVar(&opts.channels, "channels", speech.DefaultChannelCount, "channel count of raw PCM input")
	fs.IntVar(&opts.bits, "bits", speech.DefaultBitsPerSample, "bits per sample of raw PCM input")
	fs.StringVar(&opts.output, "output", "", "simple or detailed (default SPEECH_OUTPUT_MODE)")
	fs.StringVar(&opts.mode, "mode", "", "interactive, conversation or dictation")
	fs.StringVar(&opts.profanity, "profanity", "", "masked, removed or raw")
	fs.StringVar(&opts.language, "language", "", "recognition language, e.g. en-US")
	fs.StringVar(&opts.authMode, "auth-mode", "", "token or key")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if (opts.file == "") == (opts.url == "") {
		return options{}, errors.New("exactly one of -file or -url is required")
	}
	return opts, nil
}

// apply overrides the environment configuration with explicit flags
func (o options) apply(cfg *config.Config) {
	if o.output != "" {
		cfg.OutputMode = o.output
	}
	if o.mode != "" {
		cfg.RecognitionMode = o.mode
	}
	if o.profanity != "" {
		cfg.ProfanityMode = o.profanity
	}
	if o.language != "" {
		cfg.Language = o.language
	}
	if o.authMode != "" {
		cfg.AuthMode = o.authMode
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	opts.apply(cfg)

	// stdout carries the result
	observability.InitLoggerTo(os.Stderr, cfg.LogLevel, cfg.LogPretty)
	logger := observability.ComponentLogger("recognize")

	speechCfg, err := cfg.SpeechConfig()
	if err != nil {
		return err
	}
	client, err := speech.NewClient(speechCfg)
	if err != nil {
		return err
	}

	path := opts.file
	if opts.url != "" {
		dir, err := os.MkdirTemp("", "recognize-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)

		if path, err = download(ctx, dir, opts.url); err != nil {
			return err
		}
		logger.Debug().Str("url", opts.url).Str("path", path).Msg("Downloaded recording")
	}

	source := speech.FileSource(path)
	if opts.sampleRate > 0 {
		source = source.WithFormat(speech.AudioFormat{
			Channels:      opts.channels,
			SampleRate:    opts.sampleRate,
			BitsPerSample: opts.bits,
		})
	}

	res, err := client.SpeechToText(ctx, source)
	if err != nil {
		return err
	}

	var payload interface{} = res.Simple
	if res.Detailed != nil {
		payload = res.Detailed
	}
	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, string(out))
	return err
}

// download fetches rawURL into dir and checks that it looks like audio
func download(ctx context.Context, dir, rawURL string) (string, error) {
	req, err := grab.NewRequest(dir, rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	resp := grab.DefaultClient.Do(req.WithContext(ctx))
	if err := resp.Err(); err != nil {
		return "", fmt.Errorf("failed to download recording: %w", err)
	}

	mtype, err := mimetype.DetectFile(resp.Filename)
	if err != nil {
		return "", fmt.Errorf("failed to detect file type: %w", err)
	}
	// Raw PCM has no signature and detects as octet-stream
	if !mtype.Is("audio/wav") && !mtype.Is("application/octet-stream") {
		return "", fmt.Errorf("unsupported recording type %s", mtype.String())
	}
	return resp.Filename, nil
}
