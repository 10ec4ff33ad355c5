package jones

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// DefaultTopicPrefix is the subscribe-side topic prefix when none is configured
const DefaultTopicPrefix = "polbench"

// MessageHandlers receives decoded bench messages from MQTT topics
type MessageHandlers struct {
	OnInput  func(benchID string, s PolarizationState)
	OnTarget func(benchID string, s PolarizationState)
	OnAngles func(benchID string, theta1, theta2, theta3 float64)
}

// MQTTClient manages the MQTT connection and bench topic subscriptions
type MQTTClient struct {
	client      mqtt.Client
	config      *Config
	handlers    MessageHandlers
	isConnected bool
	mu          sync.RWMutex
	log         zerolog.Logger
}

var (
	globalClient *MQTTClient
	clientMu     sync.Mutex
)

// InitMQTT initializes the global MQTT client with the provided configuration.
// If neither MQTT_BROKER nor the config sets a broker, MQTT is disabled and
// this returns nil.
func InitMQTT(config *Config, handlers MessageHandlers, log zerolog.Logger) (*MQTTClient, error) {
	clientMu.Lock()
	defer clientMu.Unlock()

	// Check if MQTT is enabled via env var or config
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil && config.MQTT.Broker != "" {
		broker = config.MQTT.Broker
	}

	if broker == "" {
		log.Info().Msg("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}

	client := &MQTTClient{
		config:   config,
		handlers: handlers,
		log:      log.With().Str("component", "mqtt").Logger(),
	}

	// Build MQTT client options
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	// Client ID
	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" && config != nil && config.MQTT.ClientID != "" {
		clientID = config.MQTT.ClientID
	}
	if clientID == "" {
		clientID = "joneslab"
	}
	opts.SetClientID(clientID)

	// Authentication
	username := os.Getenv("MQTT_USERNAME")
	if username == "" && config != nil && config.MQTT.Username != "" {
		username = config.MQTT.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" && config != nil && config.MQTT.Password != "" {
			password = config.MQTT.Password
		}
		opts.SetPassword(password)
	}

	// Connection settings
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)   // Longer than default 30s to reduce spurious disconnects
	opts.SetPingTimeout(10 * time.Second) // Timeout for ping response
	opts.SetCleanSession(false)           // Preserve subscriptions on reconnect
	opts.SetOrderMatters(false)           // Allow concurrent processing

	// Callbacks
	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	// Connect asynchronously with retry
	go client.connectWithRetry()

	globalClient = client
	return client, nil
}

// GetMQTTClient returns the global MQTT client instance
func GetMQTTClient() *MQTTClient {
	clientMu.Lock()
	defer clientMu.Unlock()
	return globalClient
}

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		c.log.Info().Msg("Connecting to MQTT broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				c.log.Info().Msg("Successfully connected to MQTT broker")
				c.setConnected(true)
				return
			}
			c.log.Warn().Err(token.Error()).Msg("MQTT connection failed")
		} else {
			c.log.Warn().Msg("MQTT connection timeout")
		}

		// Exponential backoff
		c.log.Info().Dur("retry_in", retryDelay).Msg("Retrying MQTT connection")
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// topicPrefix returns the configured subscribe-side prefix
func (c *MQTTClient) topicPrefix() string {
	if c.config != nil && c.config.MQTT.TopicPrefix != "" {
		return c.config.MQTT.TopicPrefix
	}
	return DefaultTopicPrefix
}

// qos returns the configured subscription QoS
func (c *MQTTClient) qos() byte {
	if c.config != nil {
		return c.config.MQTT.QoS
	}
	return 0
}

// onConnect is called when the MQTT connection is established
func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.log.Info().Msg("MQTT connected, subscribing to bench topics...")
	c.setConnected(true)

	prefix := c.topicPrefix()
	subscriptions := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{prefix + "/+/input", c.createInputHandler()},
		{prefix + "/+/target", c.createTargetHandler()},
		{prefix + "/+/angles", c.createAnglesHandler()},
	}

	for _, sub := range subscriptions {
		c.log.Info().Str("topic", sub.topic).Msg("Subscribing")
		token := client.Subscribe(sub.topic, c.qos(), sub.handler)

		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			c.log.Error().Err(token.Error()).Str("topic", sub.topic).Msg("Error subscribing")
		} else {
			c.log.Info().Str("topic", sub.topic).Msg("Successfully subscribed")
		}
	}
}

// onConnectionLost is called when the MQTT connection is lost
// Auto-reconnect is enabled, so this is typically a transient event
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	c.log.Warn().Err(err).Msg("MQTT connection interrupted, auto-reconnect will retry")
	c.setConnected(false)
}

// onReconnecting is called when the client attempts to reconnect
func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	c.log.Info().Msg("MQTT reconnecting...")
}

// benchFromTopic extracts the bench ID from a subscribed topic.
// Example: "polbench/b1/input" -> "b1". The bench is always the segment
// before the leaf, so prefixes containing slashes still work.
func benchFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return "", false
	}
	bench := parts[len(parts)-2]
	if bench == "" {
		return "", false
	}
	return bench, true
}

// parseStatePayload decodes a polarization state payload. Accepts a JSON
// object with ex/ey pairs, a JSON string naming a preset, or a bare preset
// name such as "RCP".
func parseStatePayload(payload []byte) (PolarizationState, error) {
	var spec StateSpec
	if err := json.Unmarshal(payload, &spec); err == nil {
		return spec.State, nil
	}

	// Raw string fallback for hand-typed payloads
	s, ok := StateByName(strings.TrimSpace(string(payload)))
	if !ok {
		return PolarizationState{}, fmt.Errorf("unrecognized state payload %q", string(payload))
	}
	return s, nil
}

// anglesPayload is the JSON object form of a waveplate angles message.
// Pointers distinguish a present zero from a missing field.
type anglesPayload struct {
	Theta1 *float64 `json:"theta1"`
	Theta2 *float64 `json:"theta2"`
	Theta3 *float64 `json:"theta3"`
}

// parseAnglesPayload decodes a waveplate angles payload. Accepts a JSON
// object {"theta1":..,"theta2":..,"theta3":..}, a JSON array [t1,t2,t3],
// or a bare comma-separated triple "45,22.5,-45".
func parseAnglesPayload(payload []byte) (theta1, theta2, theta3 float64, err error) {
	var obj anglesPayload
	if err := json.Unmarshal(payload, &obj); err == nil &&
		obj.Theta1 != nil && obj.Theta2 != nil && obj.Theta3 != nil {
		return *obj.Theta1, *obj.Theta2, *obj.Theta3, nil
	}

	var arr []float64
	if err := json.Unmarshal(payload, &arr); err == nil && len(arr) == 3 {
		return arr[0], arr[1], arr[2], nil
	}

	// Raw CSV fallback for hand-typed payloads
	parts := strings.Split(strings.TrimSpace(string(payload)), ",")
	if len(parts) == 3 {
		vals := make([]float64, 3)
		ok := true
		for i, p := range parts {
			v, perr := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if perr != nil {
				ok = false
				break
			}
			vals[i] = v
		}
		if ok {
			return vals[0], vals[1], vals[2], nil
		}
	}

	return 0, 0, 0, fmt.Errorf("unrecognized angles payload %q", string(payload))
}

// createInputHandler creates the handler for bench input state messages
func (c *MQTTClient) createInputHandler() mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		benchID, ok := benchFromTopic(msg.Topic())
		if !ok {
			c.log.Warn().Str("topic", msg.Topic()).Msg("Input message on unparseable topic")
			return
		}

		c.log.Debug().
			Str("bench", benchID).
			Str("topic", msg.Topic()).
			Int("bytes", len(msg.Payload())).
			Msg("Received input state")

		s, err := parseStatePayload(msg.Payload())
		if err != nil {
			c.log.Error().Err(err).Str("bench", benchID).Msg("Error decoding input state")
			return
		}

		if c.handlers.OnInput != nil {
			c.handlers.OnInput(benchID, s)
		}
	}
}

// createTargetHandler creates the handler for bench target state messages
func (c *MQTTClient) createTargetHandler() mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		benchID, ok := benchFromTopic(msg.Topic())
		if !ok {
			c.log.Warn().Str("topic", msg.Topic()).Msg("Target message on unparseable topic")
			return
		}

		c.log.Debug().
			Str("bench", benchID).
			Str("topic", msg.Topic()).
			Int("bytes", len(msg.Payload())).
			Msg("Received target state")

		s, err := parseStatePayload(msg.Payload())
		if err != nil {
			c.log.Error().Err(err).Str("bench", benchID).Msg("Error decoding target state")
			return
		}

		if c.handlers.OnTarget != nil {
			c.handlers.OnTarget(benchID, s)
		}
	}
}

// createAnglesHandler creates the handler for bench waveplate angle messages
func (c *MQTTClient) createAnglesHandler() mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		benchID, ok := benchFromTopic(msg.Topic())
		if !ok {
			c.log.Warn().Str("topic", msg.Topic()).Msg("Angles message on unparseable topic")
			return
		}

		c.log.Debug().
			Str("bench", benchID).
			Str("topic", msg.Topic()).
			Int("bytes", len(msg.Payload())).
			Msg("Received angles")

		theta1, theta2, theta3, err := parseAnglesPayload(msg.Payload())
		if err != nil {
			c.log.Error().Err(err).Str("bench", benchID).Msg("Error decoding angles")
			return
		}

		if c.handlers.OnAngles != nil {
			c.handlers.OnAngles(benchID, theta1, theta2, theta3)
		}
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// setConnected updates the connection status
func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		c.log.Info().Msg("Disconnecting from MQTT broker...")
		c.client.Disconnect(250) // 250ms quiesce time
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock creates an MQTTClient with a provided mqtt.Client
// This is used for testing with mock clients
func newMQTTClientWithMock(client mqtt.Client, config *Config, handlers MessageHandlers) *MQTTClient {
	return &MQTTClient{
		client:   client,
		config:   config,
		handlers: handlers,
		log:      zerolog.Nop(),
	}
}
