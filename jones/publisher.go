package jones

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// DefaultPublishPrefix is the publish-side topic prefix when none is configured
const DefaultPublishPrefix = "joneslab"

// BenchResult is the wire format for a published search result
type BenchResult struct {
	BenchID   string  `json:"benchId"`
	Theta1    float64 `json:"theta1"`
	Theta2    float64 `json:"theta2"`
	Theta3    float64 `json:"theta3"`
	Error     float64 `json:"error"`
	Converged bool    `json:"converged"`
	Timestamp int64   `json:"timestamp"`
}

// Publisher manages publishing search results and output states to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	results       map[string]*BenchResult
	mu            sync.RWMutex
	log           zerolog.Logger
}

// NewPublisher creates a new result publisher
// If client is nil, publishing is disabled (for testing)
func NewPublisher(client mqtt.Client, log zerolog.Logger) *Publisher {
	prefix := os.Getenv("MQTT_PUBLISH_PREFIX")
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,    // QoS 0 for result updates (fire and forget)
		retain:        true, // Retain for latest result
		results:       make(map[string]*BenchResult),
		log:           log.With().Str("component", "publisher").Logger(),
	}
}

// PublishResult publishes a bench's search result to MQTT.
// Publishes to both the bench's result topic and the combined results topic.
func (p *Publisher) PublishResult(benchID string, result SearchResult) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	br := &BenchResult{
		BenchID:   benchID,
		Theta1:    result.Theta1,
		Theta2:    result.Theta2,
		Theta3:    result.Theta3,
		Error:     result.Error,
		Converged: result.Converged,
		Timestamp: time.Now().Unix(),
	}

	// Store result for combined message
	p.mu.Lock()
	p.results[benchID] = br
	p.mu.Unlock()

	// Publish to individual topic: joneslab/{benchID}/result
	if err := p.publishIndividual(br); err != nil {
		p.log.Error().Err(err).Str("bench", benchID).Msg("Error publishing result")
		return err
	}

	// Publish to combined topic: joneslab/results
	if err := p.publishCombined(); err != nil {
		p.log.Error().Err(err).Msg("Error publishing combined results")
		return err
	}

	return nil
}

// publishIndividual publishes a single bench result to its individual topic
func (p *Publisher) publishIndividual(br *BenchResult) error {
	topic := fmt.Sprintf("%s/%s/result", p.publishPrefix, br.BenchID)

	payload, err := json.Marshal(br)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	p.log.Debug().
		Str("bench", br.BenchID).
		Float64("error", br.Error).
		Bool("converged", br.Converged).
		Msg("Published result")
	return nil
}

// publishCombined publishes all bench results to the combined topic
func (p *Publisher) publishCombined() error {
	p.mu.RLock()
	results := make([]*BenchResult, 0, len(p.results))
	for _, br := range p.results {
		results = append(results, br)
	}
	p.mu.RUnlock()

	if len(results) == 0 {
		return nil
	}

	topic := fmt.Sprintf("%s/results", p.publishPrefix)

	// Create combined message
	message := map[string]interface{}{
		"benches":   results,
		"timestamp": time.Now().Unix(),
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshaling combined results: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	return nil
}

// PublishState publishes a bench's output state summary to its state topic
func (p *Publisher) PublishState(benchID string, summary Summary) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	topic := fmt.Sprintf("%s/%s/state", p.publishPrefix, benchID)

	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshaling state summary: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	p.log.Debug().Str("bench", benchID).Msg("Published state summary")
	return nil
}

// PublishOutcome publishes a search result together with the output state
// it achieves. Convenience for the auto-search loop.
func (p *Publisher) PublishOutcome(benchID string, input PolarizationState, result SearchResult) error {
	if err := p.PublishResult(benchID, result); err != nil {
		return err
	}

	out := Apply(QuarterHalfQuarter(result.Theta1, result.Theta2, result.Theta3), input)
	return p.PublishState(benchID, Summarize(out))
}

// GetResult returns the last published result for a bench
func (p *Publisher) GetResult(benchID string) (*BenchResult, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	br, ok := p.results[benchID]
	return br, ok
}

// GetAllResults returns all published bench results
func (p *Publisher) GetAllResults() map[string]*BenchResult {
	p.mu.RLock()
	defer p.mu.RUnlock()

	// Return a copy to avoid race conditions
	results := make(map[string]*BenchResult, len(p.results))
	for id, br := range p.results {
		brCopy := *br
		results[id] = &brCopy
	}
	return results
}

// ClearResult removes a bench's cached result (e.g., when offline)
func (p *Publisher) ClearResult(benchID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.results, benchID)
}

// SetPrefix overrides the publish-side topic prefix. Empty values keep the
// current prefix.
func (p *Publisher) SetPrefix(prefix string) {
	if prefix != "" {
		p.publishPrefix = prefix
	}
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
