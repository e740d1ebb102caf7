package main

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/amrbekhit/spiboot"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
	"periph.io/x/conn/v3/physic"
)

var commands = map[string]func(*spiboot.Engine, []string){
	"getcmd":    processGetCommand,
	"ver":       processGetVersion,
	"id":        processGetID,
	"read":      processRead,
	"write":     processWrite,
	"erase":     processErase,
	"erase4k":   processErase4K,
	"masserase": processMassErase,
	"go":        processGo,
	"wp":        processWriteProtect,
	"wu":        processWriteUnprotect,
	"rp":        processReadoutProtect,
	"ru":        processReadoutUnprotect,
	"dump":      processDump,
}

const appVersion = "0.1.0"

func main() {
	version := flag.Bool("version", false, "Prints the program version.")
	bus := flag.String("bus", "", "SPI bus name, e.g. /dev/spidev0.0.")
	freq := flag.Int64("freq", 0, "SPI clock frequency in Hz.")
	mode := flag.Int("mode", -1, "SPI clock mode 0-3.")
	bridge := flag.String("bridge", "", "Serial port of an SPI bridge, used instead of -bus.")
	baud := flag.Int("baud", 0, "SPI bridge baud rate.")
	verbose := flag.Bool("v", false, "Enable verbose logging.")
	logFile := flag.String("log", "", "Also append log output to this file.")
	before := flag.String("before", "", "Command to run before programming.")
	after := flag.String("after", "", "Command to run after programming has been completed successfully.")
	address := flag.String("addr", "", "Target address, defaults to the profile flash base.")
	size := flag.Uint("size", 0, "Number of bytes to program, defaults to the rest of the file after -offset.")
	offset := flag.Int64("offset", 0, "Offset in the firmware file.")
	erase := flag.Bool("erase", false, "Mass erase before programming.")
	sum := flag.String("md5", "", "Expected MD5 of the firmware file.")
	dump := flag.Bool("dump", false, "Dump the programmed range after verifying.")
	jump := flag.Bool("go", false, "Jump to the target address when complete.")

	// Format the default configuration in YAML format as an example.
	buf := new(bytes.Buffer)
	enc := yaml.NewEncoder(buf)
	enc.Encode(defaultFileConfig())
	configFile := flag.String("config", "", "Configuration file, YAML or TOML (.toml). Example:\n\n"+buf.String())

	cmdList := []string{}
	for key := range commands {
		cmdList = append(cmdList, key)
	}
	sort.Strings(cmdList)
	command := flag.String("cmd", "", fmt.Sprintf("Command to run, one of: %+v\n"+
		"Memory read commands have the following usage: cmdname addr length, e.g. read 0x08000000 32\n"+
		"Memory write commands have the following usage: cmdname addr datafile, e.g. write 0x08000000 datafile",
		cmdList))

	flag.Parse()

	if *version {
		fmt.Println(appVersion)
		return
	}

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalf("failed to open log file: %v", err)
		}
		defer f.Close()
		log.SetOutput(io.MultiWriter(os.Stderr, f))
	}

	cfg := defaultFileConfig()
	if *configFile != "" {
		var err error
		if cfg, err = loadConfig(*configFile); err != nil {
			log.Fatal(err)
		}
	}
	if *bus != "" {
		cfg.Bus = *bus
	}
	if *freq > 0 {
		cfg.Frequency = *freq
	}
	if *mode >= 0 {
		cfg.Mode = *mode
	}
	if *bridge != "" {
		cfg.Bridge = *bridge
	}
	if *baud > 0 {
		cfg.Baud = *baud
	}

	opts := append(cfg.options(),
		spiboot.WithLogger(log.StandardLogger()),
		spiboot.WithProgress(func(p spiboot.Progress) {
			log.Debugf("%v: %d/%d", p.Op, p.Done, p.Total)
		}),
	)

	engine, err := openEngine(cfg, opts)
	if err != nil {
		log.Fatalf("failed to initialise bootloader: %v", err)
	}
	defer engine.Close()
	closeOnFatal(engine)

	log.Infof("connecting to device...")
	if err := engine.Connect(); err != nil {
		log.Fatal(err)
	}
	log.Infof("connected")

	switch {
	case *command != "":
		// Run a single command
		f, ok := commands[*command]
		if !ok {
			log.Fatalf("invalid command %v", *command)
		}
		f(engine, flag.Args())

	default:
		// Try and program a firmware file
		if len(flag.Args()) != 1 {
			log.Fatalf("must specify firmware file to program")
		}
		file := flag.Args()[0]

		if *sum != "" {
			if err := checkMD5(file, *sum); err != nil {
				log.Fatal(err)
			}
		}

		addr := uint64(cfg.Profile.FlashBase)
		if *address != "" {
			addr = parseUint("address", *address, 32)
		}

		// Run the before command
		if *before != "" {
			log.Infof("running before command...")
			if err := exec.Command(*before).Run(); err != nil {
				log.Fatalf("failed to run before command: %v", err)
			}
		}

		if *erase {
			log.Infof("erasing...")
			if err := engine.MassErase(); err != nil {
				log.Fatal(err)
			}
		}

		if strings.EqualFold(filepath.Ext(file), ".hex") {
			programHex(engine, file)
		} else {
			programBinary(engine, file, uint32(addr), int(*size), *offset, *dump)
		}

		if *jump {
			log.Infof("starting application at %08X...", addr)
			if err := engine.Go(uint32(addr)); err != nil {
				log.Fatal(err)
			}
		}
		log.Infof("complete")

		// Run the after command
		if *after != "" {
			log.Infof("running after command...")
			if err := exec.Command(*after).Run(); err != nil {
				log.Fatalf("failed to run after command: %v", err)
			}
		}
	}
}

// closeOnFatal releases c when log.Fatal exits the program, which skips
// deferred calls.
func closeOnFatal(c io.Closer) {
	log.RegisterExitHandler(func() {
		if err := c.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close: %v\n", err)
		}
	})
}

func openEngine(cfg fileConfig, opts []spiboot.Option) (*spiboot.Engine, error) {
	if cfg.Bridge != "" {
		t := spiboot.NewSerialBridge(cfg.Bridge, cfg.Baud)
		if err := t.Enable(); err != nil {
			return nil, err
		}
		return spiboot.NewEngine(t, cfg.Profile, opts...), nil
	}
	freq := physic.Frequency(cfg.Frequency) * physic.Hertz
	return spiboot.OpenSPI(cfg.Bus, freq, spiboot.ClockMode(cfg.Mode), cfg.Profile, opts...)
}

func programBinary(e *spiboot.Engine, file string, addr uint32, size int, offset int64, dump bool) {
	if size == 0 {
		info, err := os.Stat(file)
		if err != nil {
			log.Fatal(err)
		}
		size = int(info.Size() - offset)
	}

	log.Infof("programming %d bytes at %08X...", size, addr)
	if err := e.Program(file, addr, size, offset); err != nil {
		log.Fatal(err)
	}

	log.Infof("verifying...")
	if err := e.Verify(file, addr, size, offset); err != nil {
		log.Fatal(err)
	}

	if dump {
		log.Infof("dumping...")
		if err := e.Dump(file, addr, size); err != nil {
			log.Fatal(err)
		}
		log.Infof("written %v", spiboot.DumpPath(file))
	}
}

func programHex(e *spiboot.Engine, file string) {
	log.Infof("programming...")
	if err := withFile(file, e.ProgramHex); err != nil {
		log.Fatal(err)
	}
	log.Infof("verifying...")
	if err := withFile(file, e.VerifyHex); err != nil {
		log.Fatal(err)
	}
}

func withFile(name string, f func(io.Reader) error) error {
	file, err := os.Open(name)
	if err != nil {
		return err
	}
	defer file.Close()
	return f(file)
}

// checkMD5 compares the MD5 of the file with want, given as 32 hex digits
// with an optional 0x prefix.
func checkMD5(name, want string) error {
	want = strings.TrimPrefix(strings.ToLower(want), "0x")
	if len(want) != 32 {
		return fmt.Errorf("invalid md5 %q", want)
	}
	h := md5.New()
	if err := withFile(name, func(r io.Reader) error {
		_, err := io.Copy(h, r)
		return err
	}); err != nil {
		return err
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != want {
		return fmt.Errorf("md5 mismatch: file is %v, expected %v", got, want)
	}
	return nil
}
