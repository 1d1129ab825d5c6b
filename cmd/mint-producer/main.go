package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
)

// MintRequest mirrors the message format the mint consumer expects
type MintRequest struct {
	SteamID       string `json:"steam_id"`
	AppID         uint32 `json:"app_id"`
	AchievementID string `json:"achievement_id"`
	OwnerAddress  string `json:"owner_address"`
}

var sampleAchievements = []string{
	"TF_PLAY_GAME", "TF_GET_KILL", "TF_BURN_PLAYERS", "TF_GET_HEALPOINTS",
	"TF_KILL_NEMESIS", "TF_GET_CONSECUTIVEKILLS", "TF_PLAY_GAME_EVERYMAP",
	"TF_GET_MULTIPLEKILLS", "TF_WIN_MULTIPLEGAMES", "TF_GET_HEADSHOTS",
}

func randomAddress(r *rand.Rand) string {
	const hexdigits = "0123456789abcdef"
	b := make([]byte, 40)
	for i := range b {
		b[i] = hexdigits[r.Intn(len(hexdigits))]
	}
	return "0x" + string(b)
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "mint-requests", "Kafka topic")
	appID := flag.Uint("app", 440, "Steam app ID")
	steamID := flag.String("steamid", "76561197960435530", "Steam ID to mint for")
	requestsPerSecond := flag.Int("rate", 10, "Mint requests per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("Mint request producer")
	fmt.Printf("  brokers:  %s\n", *brokers)
	fmt.Printf("  topic:    %s\n", *topic)
	fmt.Printf("  app:      %d\n", *appID)
	fmt.Printf("  rate:     %d req/s\n", *requestsPerSecond)
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	// Create producer
	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("produce error: %v", err)
		}
	}()

	// Stop on signal or after the configured duration
	stop := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		if *duration > 0 {
			select {
			case <-sigCh:
			case <-time.After(*duration):
			}
		} else {
			<-sigCh
		}
		close(stop)
	}()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(time.Second / time.Duration(*requestsPerSecond))
	defer ticker.Stop()

	sent := 0
loop:
	for {
		select {
		case <-stop:
			break loop
		case <-ticker.C:
			req := MintRequest{
				SteamID:       *steamID,
				AppID:         uint32(*appID),
				AchievementID: sampleAchievements[rng.Intn(len(sampleAchievements))],
				OwnerAddress:  randomAddress(rng),
			}
			payload, err := json.Marshal(req)
			if err != nil {
				log.Printf("encode error: %v", err)
				continue
			}
			producer.Input() <- &sarama.ProducerMessage{
				Topic: *topic,
				Key:   sarama.StringEncoder(req.SteamID),
				Value: sarama.ByteEncoder(payload),
			}
			sent++
			if sent%100 == 0 {
				log.Printf("sent=%d ok=%d err=%d", sent,
					atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
			}
		}
	}

	producer.AsyncClose()
	wg.Wait()

	fmt.Printf("\ndone: sent=%d ok=%d err=%d\n", sent,
		atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
}
