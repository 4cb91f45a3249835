//go:build pcap
// +build pcap

// Command profile-replay re-emits recorded profiler frames from a PCAP
// capture over UDP, so a correction run can be exercised against real scan
// data without hardware attached.
//
// Usage:
//
//	go run -tags pcap ./cmd/tools/profile-replay -pcap scan.pcap -dest 127.0.0.1:2430
//
// Flags:
//
//	-pcap  Capture file to replay (required)
//	-port  UDP port the frames were captured on (default 2430)
//	-dest  Destination address for replayed frames
//	-rate  Playback speed multiplier (default 1.0, capture timing)
//	-loop  Restart from the beginning when the capture ends
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

func main() {
	pcapFile := flag.String("pcap", "", "Capture file to replay (required)")
	udpPort := flag.Int("port", 2430, "UDP port the frames were captured on")
	dest := flag.String("dest", "127.0.0.1:2430", "Destination address for replayed frames")
	rate := flag.Float64("rate", 1.0, "Playback speed multiplier")
	loop := flag.Bool("loop", false, "Loop playback when reaching end")
	flag.Parse()

	if *pcapFile == "" {
		log.Fatal("Error: -pcap flag is required")
	}
	if *rate <= 0 {
		log.Fatal("Error: -rate must be positive")
	}

	addr, err := net.ResolveUDPAddr("udp", *dest)
	if err != nil {
		log.Fatalf("Failed to resolve destination: %v", err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		log.Fatalf("Failed to create UDP connection: %v", err)
	}
	defer conn.Close()

	for {
		sent, err := replayOnce(*pcapFile, *udpPort, conn, *rate)
		if err != nil {
			log.Fatalf("Replay failed: %v", err)
		}
		log.Printf("Replay complete: %d frames sent to %s", sent, *dest)
		if !*loop {
			return
		}
	}
}

// replayOnce streams one pass of the capture, pacing packets by their
// capture timestamps scaled by rate.
func replayOnce(pcapFile string, udpPort int, conn *net.UDPConn, rate float64) (int, error) {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return 0, fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer handle.Close()

	filter := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filter); err != nil {
		return 0, fmt.Errorf("failed to set BPF filter %q: %w", filter, err)
	}

	source := gopacket.NewPacketSource(handle, handle.LinkType())
	sent := 0
	var lastTS time.Time

	for packet := range source.Packets() {
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}

		ts := packet.Metadata().Timestamp
		if !lastTS.IsZero() {
			if gap := ts.Sub(lastTS); gap > 0 {
				time.Sleep(time.Duration(float64(gap) / rate))
			}
		}
		lastTS = ts

		if _, err := conn.Write(udp.Payload); err != nil {
			return sent, fmt.Errorf("failed to send frame: %w", err)
		}
		sent++
		if sent%1000 == 0 {
			log.Printf("Replayed %d frames", sent)
		}
	}
	return sent, nil
}
