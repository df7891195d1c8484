package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

func main() {
	brokerAddr := flag.String("broker", "tcp://localhost:1883", "MQTT broker address, e.g. tcp://localhost:1883")
	username := flag.String("username", "", "MQTT username")
	password := flag.String("password", "", "MQTT password")
	deviceID := flag.String("device-id", "sim-coop-1", "Device identifier")
	interval := flag.Duration("interval", 5*time.Second, "Interval between published readings")
	baseTemp := flag.Float64("base-temp", 30, "Baseline temperature in °C")
	tempJitter := flag.Float64("temp-jitter", 4, "Maximum random jitter applied to temperature")
	baseGas := flag.Float64("base-gas", 250, "Baseline gas concentration in PPM")
	gasJitter := flag.Float64("gas-jitter", 80, "Maximum random jitter applied to gas concentration")
	humidity := flag.Float64("humidity", 70, "Reported humidity percentage (negative to omit)")
	legacyGasField := flag.Bool("legacy-gas-field", false, "Send the gas value under the old 'amonia' field name")
	wrapArray := flag.Bool("wrap-array", false, "Wrap the payload in a single-element JSON array")

	flag.Parse()

	clientID := fmt.Sprintf("%s-simulator-%d", *deviceID, time.Now().UnixNano())
	opts := mqtt.NewClientOptions().AddBroker(*brokerAddr).SetClientID(clientID)
	if *username != "" {
		opts = opts.SetUsername(*username).SetPassword(*password)
	}
	opts = opts.SetOrderMatters(false)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("failed to connect to broker: %v", token.Error())
	}
	log.Printf("connected to MQTT broker %s as %s", *brokerAddr, clientID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	publish := func() {
		temp := jitter(*baseTemp, *tempJitter)
		gas := jitter(*baseGas, *gasJitter)

		payload := map[string]any{"temperature": temp}
		if *humidity >= 0 {
			payload["humidity"] = *humidity
		}
		if *legacyGasField {
			payload["amonia"] = gas
		} else {
			payload["gas_ppm"] = gas
		}

		var body any = payload
		if *wrapArray {
			body = []any{payload}
		}

		data, err := json.Marshal(body)
		if err != nil {
			log.Printf("failed to encode payload: %v", err)
			return
		}

		topic := fmt.Sprintf("devices/%s/data", *deviceID)
		token := client.Publish(topic, 0, false, data)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("publish error: %v", err)
			return
		}
		log.Printf("published %s temp=%.1f gas=%.0f", topic, temp, gas)
	}

	publish()

	for {
		select {
		case <-ctx.Done():
			log.Print("received shutdown signal, disconnecting")
			client.Disconnect(250)
			return
		case <-ticker.C:
			publish()
		}
	}
}

func jitter(base, spread float64) float64 {
	if spread <= 0 {
		return base
	}
	return base + (rand.Float64()*2-1)*spread
}
