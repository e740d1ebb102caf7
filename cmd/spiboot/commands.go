package main

import (
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"strconv"

	"github.com/amrbekhit/spiboot"
	log "github.com/sirupsen/logrus"
)

func processGetCommand(e *spiboot.Engine, args []string) {
	set, err := e.GetCommand()
	if err != nil {
		log.Fatalf("failed to get commands: %v", err)
	}
	log.Infof("protocol version %d.%d", set.Version>>4, set.Version&0xF)
	for _, cmd := range set.Commands {
		fmt.Printf("0x%02X %v\n", cmd, spiboot.CommandName(cmd))
	}
}

func processGetVersion(e *spiboot.Engine, args []string) {
	ver, err := e.GetVersion()
	if err != nil {
		log.Fatalf("failed to read version: %v", err)
	}
	fmt.Printf("version: %d.%d\n", ver>>4, ver&0xF)
}

func processGetID(e *spiboot.Engine, args []string) {
	id, err := e.GetID()
	if err != nil {
		log.Fatalf("failed to read id: %v", err)
	}
	fmt.Printf("id: % X\n", id)
}

func parseUint(name, s string, bits int) uint64 {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		log.Fatalf("invalid %v: %v", name, err)
	}
	return v
}

func getTwo(args []string, usage, first, second string) (uint64, uint64) {
	if len(args) != 2 {
		log.Fatalf("expected: %v", usage)
	}
	return parseUint(first, args[0], 32), parseUint(second, args[1], 32)
}

func processRead(e *spiboot.Engine, args []string) {
	addr, size := getTwo(args, "addr len", "address", "length")
	data, err := e.Read(uint32(addr), int(size))
	if err != nil {
		log.Fatalf("failed to read memory: %v", err)
	}
	fmt.Print(hex.Dump(data))
}

func processWrite(e *spiboot.Engine, args []string) {
	if len(args) != 2 {
		log.Fatalf("expected: addr datafile")
	}
	addr := parseUint("address", args[0], 32)
	data, err := ioutil.ReadFile(args[1])
	if err != nil {
		log.Fatalf("failed to read data file: %v", err)
	}
	if err := e.Write(uint32(addr), data); err != nil {
		log.Fatalf("failed to write memory: %v", err)
	}
}

func processErase(e *spiboot.Engine, args []string) {
	start, num := getTwo(args, "startpage pages", "start page", "page count")
	if err := e.EraseMemory(uint32(start), uint32(num)); err != nil {
		log.Fatalf("failed to erase: %v", err)
	}
}

func processErase4K(e *spiboot.Engine, args []string) {
	if len(args) != 1 {
		log.Fatalf("expected: page")
	}
	if err := e.Erase4K(uint32(parseUint("page", args[0], 32))); err != nil {
		log.Fatalf("failed to erase: %v", err)
	}
}

func processMassErase(e *spiboot.Engine, args []string) {
	if err := e.MassErase(); err != nil {
		log.Fatalf("failed to mass erase: %v", err)
	}
}

func processGo(e *spiboot.Engine, args []string) {
	if len(args) != 1 {
		log.Fatalf("expected: addr")
	}
	if err := e.Go(uint32(parseUint("address", args[0], 32))); err != nil {
		log.Fatalf("failed to jump: %v", err)
	}
}

func processWriteProtect(e *spiboot.Engine, args []string) {
	start, num := getTwo(args, "startpage pages", "start page", "page count")
	if err := e.WriteProtect(uint32(start), uint32(num)); err != nil {
		log.Fatalf("failed to write protect: %v", err)
	}
}

func processWriteUnprotect(e *spiboot.Engine, args []string) {
	if err := e.WriteUnprotect(); err != nil {
		log.Fatalf("failed to write unprotect: %v", err)
	}
}

func processReadoutProtect(e *spiboot.Engine, args []string) {
	if err := e.ReadoutProtect(); err != nil {
		log.Fatalf("failed to readout protect: %v", err)
	}
}

func processReadoutUnprotect(e *spiboot.Engine, args []string) {
	if err := e.ReadoutUnprotect(); err != nil {
		log.Fatalf("failed to readout unprotect: %v", err)
	}
}

func processDump(e *spiboot.Engine, args []string) {
	if len(args) != 3 {
		log.Fatalf("expected: addr len file")
	}
	addr := parseUint("address", args[0], 32)
	size := parseUint("length", args[1], 32)
	if err := e.Dump(args[2], uint32(addr), int(size)); err != nil {
		log.Fatalf("failed to dump: %v", err)
	}
	log.Infof("written %v", spiboot.DumpPath(args[2]))
}
