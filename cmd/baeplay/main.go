// main.go - baeplay, a command-line host for the bae MIDI synthesis
// and mixing engine: loads an instrument bank and a Standard MIDI
// File, plays it through the default audio device (or a headless
// no-op sink under -tags headless), and can optionally capture the
// mix to a WAV file.
//
// Flag/config wiring grounded on doismellburning/samoyed's
// cmd/direwolf/main.go (spf13/pflag with a custom pflag.Usage), plus
// gopkg.in/yaml.v3 for an optional session config file the flags can
// override, per SPEC_FULL.md's ambient-stack section.
package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/beatcraft/baesynth"
)

// sessionConfig is the optional YAML file -config points at; any flag
// explicitly set on the command line overrides the matching field.
type sessionConfig struct {
	SampleRate     int    `yaml:"sample_rate"`
	Channels       int    `yaml:"channels"`
	FramesPerBlock int    `yaml:"frames_per_block"`
	MaxSongVoices  int    `yaml:"max_song_voices"`
	MasterVolume   float64 `yaml:"master_volume"`
	ReverbType     string `yaml:"reverb_type"`
}

var reverbNames = map[string]bae.ReverbType{
	"none":            bae.ReverbNone,
	"closet":          bae.ReverbCloset,
	"garage":          bae.ReverbGarage,
	"acoustic-lab":    bae.ReverbAcousticLab,
	"cavern":          bae.ReverbCavern,
	"dungeon":         bae.ReverbDungeon,
	"small-reflect":   bae.ReverbSmallReflections,
	"early-reflect":   bae.ReverbEarlyReflections,
	"basement":        bae.ReverbBasement,
	"banquet-hall":    bae.ReverbBanquetHall,
	"catacombs":       bae.ReverbCatacombs,
	"neo-room":        bae.ReverbNeoRoom,
	"neo-hall":        bae.ReverbNeoHall,
	"neo-cavern":      bae.ReverbNeoCavern,
	"neo-dungeon":     bae.ReverbNeoDungeon,
	"neo-tap-delay":   bae.ReverbNeoTapDelay,
	"neo-custom":      bae.ReverbNeoCustom,
}

func main() {
	var (
		bankPath    = pflag.StringP("bank", "b", "", "Instrument bank file (.bnk native, .dls, or .sf2).")
		bankFormat  = pflag.StringP("bank-format", "f", "", "Bank format override: native, dls, or sf2. Inferred from the bank file extension if omitted.")
		midiPath    = pflag.StringP("midi", "m", "", "Standard MIDI File to play.")
		configPath  = pflag.StringP("config", "c", "", "Optional YAML session config file.")
		sampleRate  = pflag.IntP("sample-rate", "r", 44100, "Output sample rate in Hz.")
		channels    = pflag.IntP("channels", "n", 2, "Output channel count, 1 or 2.")
		blockFrames = pflag.IntP("block-frames", "B", 512, "Frames rendered per audio callback.")
		maxVoices   = pflag.IntP("max-voices", "v", 32, "Maximum simultaneous Song voices.")
		volume      = pflag.Float64P("volume", "V", 1.0, "Master volume, 0..1.")
		reverbName  = pflag.StringP("reverb", "R", "neo-room", "Reverb preset name; see --list-reverbs.")
		listReverbs = pflag.Bool("list-reverbs", false, "Print available reverb preset names and exit.")
		loopCount   = pflag.IntP("loop", "l", 1, "Number of times to play the song; 0 loops forever.")
		capturePath = pflag.StringP("capture", "o", "", "Capture the mix to this WAV file while playing.")
		logLevel    = pflag.StringP("log-level", "L", "info", "Log level: debug, info, warn, error.")
		help        = pflag.BoolP("help", "h", false, "Display help text.")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "baeplay - play a MIDI file through the bae synthesis engine.\n\n")
		fmt.Fprintf(os.Stderr, "Usage: baeplay -b <bank> -m <song.mid> [options]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}
	if *listReverbs {
		for name := range reverbNames {
			fmt.Println(name)
		}
		os.Exit(0)
	}

	cfg := sessionConfig{
		SampleRate:     *sampleRate,
		Channels:       *channels,
		FramesPerBlock: *blockFrames,
		MaxSongVoices:  *maxVoices,
		MasterVolume:   *volume,
		ReverbType:     *reverbName,
	}
	if *configPath != "" {
		if err := loadYAMLConfig(*configPath, &cfg); err != nil {
			fmt.Fprintln(os.Stderr, "baeplay:", err)
			os.Exit(1)
		}
		pflag.Visit(func(f *pflag.Flag) {
			switch f.Name {
			case "sample-rate":
				cfg.SampleRate = *sampleRate
			case "channels":
				cfg.Channels = *channels
			case "block-frames":
				cfg.FramesPerBlock = *blockFrames
			case "max-voices":
				cfg.MaxSongVoices = *maxVoices
			case "volume":
				cfg.MasterVolume = *volume
			case "reverb":
				cfg.ReverbType = *reverbName
			}
		})
	}

	if *bankPath == "" || *midiPath == "" {
		fmt.Fprintln(os.Stderr, "baeplay: --bank and --midi are required")
		pflag.Usage()
		os.Exit(1)
	}

	reverbType, ok := reverbNames[cfg.ReverbType]
	if !ok {
		fmt.Fprintf(os.Stderr, "baeplay: unknown reverb %q; see --list-reverbs\n", cfg.ReverbType)
		os.Exit(1)
	}

	logger := bae.NewLogger(os.Stderr, parseLogLevel(*logLevel))

	mixer, err := bae.Open(bae.Config{
		SampleRate:     cfg.SampleRate,
		Channels:       cfg.Channels,
		FramesPerBlock: cfg.FramesPerBlock,
		MaxSongVoices:  cfg.MaxSongVoices,
		MaxSoundVoices: 8,
		MasterVolume:   cfg.MasterVolume,
		ReverbType:     reverbType,
		Logger:         logger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "baeplay: open mixer:", err)
		os.Exit(1)
	}
	defer mixer.Close()

	bankToken, err := loadBank(mixer, *bankPath, *bankFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "baeplay: load bank:", err)
		os.Exit(1)
	}

	midiFile, err := os.Open(*midiPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "baeplay:", err)
		os.Exit(1)
	}
	stream, ppqn, err := bae.LoadSMF(midiFile)
	midiFile.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "baeplay: parse MIDI file:", err)
		os.Exit(1)
	}

	if *capturePath != "" {
		f, err := os.Create(*capturePath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "baeplay: capture:", err)
			os.Exit(1)
		}
		defer f.Close()
		mixer.BeginCapture(bae.NewWavCaptureSink(f, cfg.SampleRate, cfg.Channels))
		defer mixer.EndCapture()
	}

	// CreateSong counts repeats after the first pass; --loop counts passes.
	loops := *loopCount - 1
	if *loopCount == 0 {
		loops = bae.LoopInfinite
	}
	song := mixer.CreateSong(stream, bankToken, ppqn, loops)
	done := make(chan struct{})
	song.OnFinished(func() { close(done) })
	song.Start()

	player, err := NewOtoPlayer(cfg.SampleRate, cfg.Channels)
	if err != nil {
		fmt.Fprintln(os.Stderr, "baeplay: audio device:", err)
		os.Exit(1)
	}
	defer player.Close()
	player.SetupPlayer(mixer)
	player.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	select {
	case <-done:
	case <-sig:
		logger.Info("interrupted")
	}
}

func loadBank(m *bae.Mixer, path, formatFlag string) (bae.BankToken, error) {
	f, err := os.Open(path)
	if err != nil {
		return bae.BankToken{}, err
	}
	defer f.Close()

	format := formatFlag
	if format == "" {
		format = inferBankFormat(path)
	}
	var bf bae.BankFormat
	switch format {
	case "dls":
		bf = bae.BankFormatDLS
	case "sf2":
		bf = bae.BankFormatSF2
	default:
		bf = bae.BankFormatNative
	}
	return m.Cache().LoadBank(f, bf)
}

func inferBankFormat(path string) string {
	switch {
	case hasSuffix(path, ".dls"):
		return "dls"
	case hasSuffix(path, ".sf2"):
		return "sf2"
	default:
		return "native"
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func loadYAMLConfig(path string, cfg *sessionConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func parseLogLevel(s string) log.Level {
	switch s {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
