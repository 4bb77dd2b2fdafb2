package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/somatic-tech/zorbgo/compile"
	"github.com/somatic-tech/zorbgo/logger"
	"github.com/somatic-tech/zorbgo/sim"
	"github.com/somatic-tech/zorbgo/zorb"
)

func main() {
	logLevel := flag.String("log", "info", "Log level: trace, debug, info, warn, error")
	stateDir := flag.String("state", "", "Directory for persisted device identity (default: temp dir)")
	compilerURL := flag.String("compiler", "", "Optional compiler service endpoint; compiles and uploads a sample pattern")
	payloadSize := flag.Int("payload", 256, "Size of the random bytecode payload to upload")
	flag.Parse()

	logger.SetLevel(logger.ParseLevel(*logLevel))

	dir := *stateDir
	if dir == "" {
		var err error
		dir, err = os.MkdirTemp("", "zorb-demo")
		if err != nil {
			log.Fatalf("Failed to create state dir: %v", err)
		}
		defer os.RemoveAll(dir)
	}

	store, err := zorb.NewIdentityStore(filepath.Join(dir, "zorb.json"))
	if err != nil {
		log.Fatalf("Failed to open identity store: %v", err)
	}

	// Simulated airspace: one genuine device with firmware info, one
	// unrelated peripheral the manager must ignore.
	central := sim.NewCentral()
	device := sim.NewPeripheral(zorb.DeviceName, zorb.ServiceUUID, zorb.DeviceInfoServiceUUID)
	device.SetValue(zorb.DeviceInfoServiceUUID, zorb.FirmwareRevisionCharUUID, []byte("1.4.2"))
	device.SetValue(zorb.DeviceInfoServiceUUID, zorb.SerialNumberCharUUID, []byte("ZRB-0042"))
	device.SetLatency(2 * time.Millisecond)
	central.Add(device)
	central.Add(sim.NewPeripheral("FitnessTracker", "0000180D-0000-1000-8000-00805F9B34FB"))

	manager := zorb.NewManager(central, store)
	manager.SetTimeouts(5*time.Second, 2*time.Second)

	session := mustConnect(manager)
	fmt.Printf("Connected to %s (%s)\n", session.Name(), session.Identifier())

	version := mustReadText("version", session.ReadVersion)
	serial := mustReadText("serial", session.ReadSerial)
	fmt.Printf("Firmware %s, serial %s\n", version, serial)

	mustComplete("write settings", func(done func(error)) {
		session.WriteSettings(zorb.Settings{
			WristOrientation:  zorb.OrientationLeft,
			ButtonOrientation: zorb.OrientationRight,
			IntensityLevel:    zorb.IntensityMedium,
		}, done)
	})

	mustComplete("write actuators", func(done func(error)) {
		session.WriteActuators(zorb.Actuators{
			Duration:    300 * time.Millisecond,
			TopLeft:     40,
			TopRight:    40,
			BottomLeft:  80,
			BottomRight: 80,
		}, done)
	})

	code := make([]byte, *payloadSize)
	if _, err := rand.Read(code); err != nil {
		log.Fatalf("Failed to generate payload: %v", err)
	}
	start := time.Now()
	mustComplete("write bytecode", func(done func(error)) {
		session.WriteBytecode(code, done)
	})
	chunks := len(device.Writes(zorb.ServiceUUID, zorb.BytecodeCharUUID))
	fmt.Printf("Uploaded %d bytes of bytecode in %d chunks (%v)\n", *payloadSize, chunks, time.Since(start).Round(time.Millisecond))

	if *compilerURL != "" {
		client := compile.NewClient(*compilerURL)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		mustComplete("compile and upload", func(done func(error)) {
			session.WriteCompiled(ctx, client, "pulse(100); wait(200); pulse(100);", done)
		})
		fmt.Println("Compiled pattern uploaded")
	}

	mustComplete("reset", session.Reset)
	fmt.Println("Device reset, disconnecting")
	session.Disconnect()
}

func mustConnect(manager *zorb.Manager) *zorb.Session {
	type result struct {
		session *zorb.Session
		err     error
	}
	ch := make(chan result, 1)
	manager.Connect(func(s *zorb.Session, err error) { ch <- result{s, err} })
	r := <-ch
	if r.err != nil {
		log.Fatalf("Failed to connect: %v", r.err)
	}
	return r.session
}

func mustComplete(what string, run func(done func(error))) {
	ch := make(chan error, 1)
	run(func(err error) { ch <- err })
	if err := <-ch; err != nil {
		log.Fatalf("Failed to %s: %v", what, err)
	}
}

func mustReadText(what string, read func(func(string, error))) string {
	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	read(func(text string, err error) { ch <- result{text, err} })
	r := <-ch
	if r.err != nil {
		log.Fatalf("Failed to read %s: %v", what, r.err)
	}
	return r.text
}
