// Reference population loader for Harrier.
//
// Usage:
//   go run cmd/loadref/main.go -csv /path/to/transaction_dataset.csv -url http://localhost:8080
//
// This tool:
//   1. Reads a labeled account dataset (address, FLAG, feature columns)
//   2. Builds feature vectors in the canonical ordering
//   3. POSTs them to Harrier's /reference/load endpoint in batches
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/harrier/internal/features"
)

// ReferenceVector mirrors the /reference/load request row.
type ReferenceVector struct {
	Reference string    `json:"reference"`
	Flag      int       `json:"flag"`
	Vector    []float64 `json:"vector"`
}

// LoadRequest is the /reference/load request body.
type LoadRequest struct {
	Vectors []*ReferenceVector `json:"vectors"`
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled dataset CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Harrier base URL")
	limit := flag.Int("limit", 0, "Maximum rows to load (0 = all)")
	batchSize := flag.Int("batch", 500, "Rows per /reference/load request")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: loadref -csv /path/to/transaction_dataset.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Printf("CSV File:    %s\n", *csvPath)
	fmt.Printf("Harrier URL: %s\n", *baseURL)
	fmt.Printf("Batch Size:  %d\n", *batchSize)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Harrier not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Harrier is running:")
		fmt.Println("  HARRIER_RPC_URL=<rpc url> go run cmd/harrier/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Harrier is healthy")

	fmt.Printf("\nReading labeled dataset from %s...\n", *csvPath)
	vectors, fraudCount, err := readDataset(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	if len(vectors) == 0 {
		fmt.Println("ERROR: No usable rows in dataset")
		os.Exit(1)
	}
	fmt.Printf("✓ Parsed %d rows\n", len(vectors))
	fmt.Printf("  - Fraud:      %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(vectors)))
	fmt.Printf("  - Legitimate: %d (%.2f%%)\n", len(vectors)-fraudCount, 100*float64(len(vectors)-fraudCount)/float64(len(vectors)))

	fmt.Printf("\nLoading in batches of %d...\n", *batchSize)
	start := time.Now()
	loaded, err := loadBatches(*baseURL, vectors, *batchSize)
	if err != nil {
		fmt.Printf("ERROR: Load failed after %d rows: %v\n", loaded, err)
		os.Exit(1)
	}

	fmt.Printf("\n✓ Loaded %d reference vectors in %v\n", loaded, time.Since(start).Round(time.Millisecond))
	fmt.Println("\nThe reference population is persisted; it survives restarts.")
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// readDataset parses the labeled CSV into reference vectors. Feature
// columns are matched by header name against the canonical ordering;
// non-numeric cells (token-name columns included) parse as 0.
func readDataset(path string, limit int) ([]*ReferenceVector, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices. Exact names first, trimmed as fallback so
	// headers with stripped leading spaces still match.
	colIndex := make(map[string]int)
	trimmedIndex := make(map[string]int)
	for i, col := range header {
		if _, ok := colIndex[col]; !ok {
			colIndex[col] = i
		}
		key := strings.TrimSpace(col)
		if _, ok := trimmedIndex[key]; !ok {
			trimmedIndex[key] = i
		}
	}

	addrCol, ok := trimmedIndex["Address"]
	if !ok {
		return nil, 0, fmt.Errorf("dataset has no Address column")
	}
	flagCol, ok := trimmedIndex["FLAG"]
	if !ok {
		return nil, 0, fmt.Errorf("dataset has no FLAG column")
	}

	featureCols := make([]int, features.Dimensions)
	for i, name := range features.FeatureNames {
		if idx, ok := colIndex[name]; ok {
			featureCols[i] = idx
			continue
		}
		if idx, ok := trimmedIndex[strings.TrimSpace(name)]; ok {
			featureCols[i] = idx
			continue
		}
		featureCols[i] = -1
	}

	var vectors []*ReferenceVector
	fraudCount := 0
	skipped := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}

		address := strings.TrimSpace(record[addrCol])
		if address == "" {
			skipped++
			continue
		}

		isFraud := strings.TrimSpace(record[flagCol]) == "1"

		vector := make([]float64, features.Dimensions)
		for i, col := range featureCols {
			if col < 0 || col >= len(record) {
				continue
			}
			if v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64); err == nil {
				vector[i] = v
			}
		}

		rv := &ReferenceVector{
			Reference: address,
			Vector:    vector,
		}
		if isFraud {
			rv.Flag = 1
			fraudCount++
		}
		vectors = append(vectors, rv)

		if limit > 0 && len(vectors) >= limit {
			break
		}
	}

	if skipped > 0 {
		fmt.Printf("  - Skipped %d malformed rows\n", skipped)
	}

	return vectors, fraudCount, nil
}

func loadBatches(baseURL string, vectors []*ReferenceVector, batchSize int) (int, error) {
	client := &http.Client{Timeout: 60 * time.Second}
	loaded := 0

	for start := 0; start < len(vectors); start += batchSize {
		end := min(start+batchSize, len(vectors))

		body, err := json.Marshal(LoadRequest{Vectors: vectors[start:end]})
		if err != nil {
			return loaded, err
		}

		resp, err := client.Post(baseURL+"/reference/load", "application/json", bytes.NewReader(body))
		if err != nil {
			return loaded, err
		}

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return loaded, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		}
		resp.Body.Close()

		loaded += end - start
		fmt.Printf("  %d / %d\n", loaded, len(vectors))
	}

	return loaded, nil
}
