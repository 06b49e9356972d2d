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

// GameResult mirrors the result-topic message shape the server ingests
type GameResult struct {
	PlayerID       string    `json:"player_id"`
	PuzzleID       string    `json:"puzzle_id"`
	Date           time.Time `json:"date"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	GuessesUsed    int       `json:"guesses_used"`
	IsWon          bool      `json:"is_won"`
}

var playerPrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
	"Ace", "Bolt", "Crash", "Dash", "Edge", "Flash", "Glitch", "Haze", "Ion", "Jade",
	"Knight", "Luna", "Mystic", "Neon", "Orion", "Pulse", "Quantum", "Rebel", "Spark", "Turbo",
}

func getPlayerName(idx int) string {
	prefixIdx := idx % len(playerPrefixes)
	suffix := idx/len(playerPrefixes) + 1
	return strings.ToLower(fmt.Sprintf("%s%d", playerPrefixes[prefixIdx], suffix))
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "wordday-results", "Kafka topic")
	puzzleID := flag.String("puzzle", "puzzle-1", "Puzzle ID")
	dateStr := flag.String("date", time.Now().UTC().Format("2006-01-02"), "Puzzle date (YYYY-MM-DD)")
	totalPlayers := flag.Int("players", 1000, "Total number of players to simulate")
	resultsPerSecond := flag.Int("rate", 100, "Results per second")
	winRate := flag.Int("win-rate", 60, "Percentage of results that are wins")
	duration := flag.Duration("duration", 0, "Duration to run (0 = one pass over all players)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	date, err := time.Parse("2006-01-02", *dateStr)
	if err != nil {
		log.Fatalf("Invalid date %q: %v", *dateStr, err)
	}

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  Result Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  Puzzle:           %s @ %s\n", *puzzleID, *dateStr)
	fmt.Printf("  Total Players:    %d\n", *totalPlayers)
	fmt.Printf("  Results/sec:      %d\n", *resultsPerSecond)
	fmt.Printf("  Win rate:         %d%%\n", *winRate)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
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
			log.Printf("Producer error: %v", err)
		}
	}()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	// Send message helper
	sendResult := func(result GameResult) {
		data, err := json.Marshal(result)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(result.PlayerID),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
			return
		}
	}

	makeResult := func(playerIdx int) GameResult {
		won := rand.Intn(100) < *winRate
		guesses := rand.Intn(6) + 1
		if !won {
			guesses = 6
		}
		return GameResult{
			PlayerID:       getPlayerName(playerIdx),
			PuzzleID:       *puzzleID,
			Date:           date,
			ElapsedSeconds: rand.Intn(580) + 20,
			GuessesUsed:    guesses,
			IsWon:          won,
		}
	}

	shutdown := func(reason string) {
		fmt.Printf("\n\n%s\n", reason)
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\nCompleted. Sent: %d, Errors: %d\n",
			atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	interval := time.Second / time.Duration(*resultsPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	sent := 0
	for {
		select {
		case <-sigChan:
			shutdown("Shutting down...")
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				shutdown("Duration reached, shutting down...")
				return
			}
			if *duration == 0 && sent >= *totalPlayers {
				shutdown("All players produced, shutting down...")
				return
			}

			sendResult(makeResult(sent % *totalPlayers))
			sent++

		case <-statsTicker.C:
			fmt.Printf("[%s] Produced: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				sent,
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
