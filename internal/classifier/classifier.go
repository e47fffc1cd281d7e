// Package classifier talks to the remote neural network service that trains
// on labeled samples and classifies new ones.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/yok-tottii/EzClassify/internal/logger"
	"github.com/yok-tottii/EzClassify/internal/samples"
)

// Messages returned by the service, in Portuguese
const (
	EmptyNameMessage       = "O nome da rede neural não pode estar vazio."
	TrainingSuccessMessage = "Treinamento concluído com sucesso!"
	saveSuccessFormat      = "Rede neural %s salva com sucesso!"
)

const wavContentType = "audio/wav"

var (
	// ErrEmptyNetworkName is returned by InitNetwork without contacting the server
	ErrEmptyNetworkName = errors.New("classifier: network name is empty")
	// ErrBatchMismatch is returned when a batch has a different number of samples and labels
	ErrBatchMismatch = errors.New("classifier: samples and labels differ in length")
	// ErrInvalidResponse is returned when a classify reply is not {class int, confidence number}
	ErrInvalidResponse = errors.New("classifier: invalid response")
)

// TransportError reports a request that did not produce a usable reply:
// a connection failure or a non-2xx status.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classifier: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("classifier: %s: server returned %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Batch pairs samples with their labels; Labels[i] describes Samples[i]
type Batch struct {
	Samples []samples.Sample
	Labels  []int
}

// Validate checks the batch shape
func (b Batch) Validate() error {
	if len(b.Samples) != len(b.Labels) {
		return fmt.Errorf("%w: %d samples, %d labels", ErrBatchMismatch, len(b.Samples), len(b.Labels))
	}
	return nil
}

// Result is the server's verdict for one sample
type Result struct {
	Class      int     `json:"class"`
	Confidence float64 `json:"confidence"`
}

// Config holds client configuration
type Config struct {
	BaseURL   string
	Timeout   time.Duration // 0 keeps the transport default
	UserAgent string
}

// Client is the classification service client
type Client struct {
	http *resty.Client
	log  *logger.Logger
}

// New creates a new client
func New(config Config, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}

	http := resty.New().
		SetBaseURL(strings.TrimRight(config.BaseURL, "/"))
	if config.Timeout > 0 {
		http.SetTimeout(config.Timeout)
	}
	if config.UserAgent != "" {
		http.SetHeader("User-Agent", config.UserAgent)
	}

	return &Client{http: http, log: log}
}

// IsTrainingSuccess reports whether reply is the exact training success phrase
func IsTrainingSuccess(reply string) bool {
	return reply == TrainingSuccessMessage
}

// IsSaveSuccess reports whether reply is the exact save success phrase for name
func IsSaveSuccess(reply, name string) bool {
	return reply == fmt.Sprintf(saveSuccessFormat, name)
}

// IsHTMLReply reports whether reply is an HTML page, as the training
// endpoint sends when the server itself fails
func IsHTMLReply(reply string) bool {
	lower := strings.ToLower(reply)
	return strings.Contains(lower, "<html") || strings.Contains(lower, "<!doctype html")
}

// errorText renders a transport failure the way the text endpoints report it
func errorText(err error) string {
	var te *TransportError
	if errors.As(err, &te) && te.Err != nil {
		return "Error: " + te.Err.Error()
	}
	return "Error: " + err.Error()
}

// text sends a request whose reply is shown to the user verbatim. The server
// reports its own failures in the body, so any status is returned as text.
func (c *Client) text(op string, resp *resty.Response, err error) (string, error) {
	if err != nil {
		terr := &TransportError{Op: op, Err: err}
		c.log.Warn("%s failed: %v", op, err)
		return errorText(terr), terr
	}

	reply := resp.String()
	c.log.Debug("%s response (%d): %s", op, resp.StatusCode(), reply)
	return reply, nil
}

// InitNetwork asks the server to create a network called name
func (c *Client) InitNetwork(ctx context.Context, name string) (string, error) {
	if name == "" {
		return EmptyNameMessage, ErrEmptyNetworkName
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"name": name}).
		Post("/initNN")
	return c.text("initNN", resp, err)
}

// SaveNetwork asks the server to persist the current network
func (c *Client) SaveNetwork(ctx context.Context) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/saveNN")
	return c.text("saveNN", resp, err)
}

func wavField(param string, sample samples.Sample, data []byte) *resty.MultipartField {
	return &resty.MultipartField{
		Param:       param,
		FileName:    sample.Name,
		ContentType: wavContentType,
		Reader:      bytes.NewReader(data),
	}
}

// TrainNetwork uploads batch in one request: every audio_files part in batch
// order, then every labels part in the same order. All files are read before
// the request is built, so an unreadable file aborts the whole batch.
func (c *Client) TrainNetwork(ctx context.Context, batch Batch) (string, error) {
	if err := batch.Validate(); err != nil {
		return "", err
	}

	fields := make([]*resty.MultipartField, 0, 2*len(batch.Samples))
	for _, sample := range batch.Samples {
		data, err := os.ReadFile(sample.Path)
		if err != nil {
			return "", fmt.Errorf("failed to read sample %s: %w", sample.Name, err)
		}
		fields = append(fields, wavField("audio_files", sample, data))
	}
	for _, label := range batch.Labels {
		fields = append(fields, &resty.MultipartField{
			Param:  "labels",
			Reader: strings.NewReader(strconv.Itoa(label)),
		})
	}

	c.log.Debug("trainNN uploading %d samples", len(batch.Samples))

	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartFields(fields...).
		Post("/trainNN")
	return c.text("trainNN", resp, err)
}

// Classify uploads sample and parses the server's verdict
func (c *Client) Classify(ctx context.Context, sample samples.Sample) (Result, error) {
	data, err := os.ReadFile(sample.Path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read sample %s: %w", sample.Name, err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartFields(wavField("audio", sample, data)).
		Post("/classify")
	if err != nil {
		c.log.Warn("classify failed: %v", err)
		return Result{}, &TransportError{Op: "classify", Err: err}
	}
	if !resp.IsSuccess() {
		return Result{}, &TransportError{Op: "classify", StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	result, err := parseResult(resp.Body())
	if err != nil {
		c.log.Warn("classify returned %q: %v", resp.String(), err)
		return Result{}, err
	}

	c.log.Debug("classify response: class -> %d | confidence -> %.4f", result.Class, result.Confidence)
	return result, nil
}

// parseResult requires an integral class and a numeric confidence
func parseResult(body []byte) (Result, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	classRaw, ok := raw["class"]
	if !ok {
		return Result{}, fmt.Errorf("%w: missing class", ErrInvalidResponse)
	}
	confRaw, ok := raw["confidence"]
	if !ok {
		return Result{}, fmt.Errorf("%w: missing confidence", ErrInvalidResponse)
	}

	var class, confidence *float64
	if err := json.Unmarshal(classRaw, &class); err != nil || class == nil || *class != math.Trunc(*class) {
		return Result{}, fmt.Errorf("%w: class %s is not an integer", ErrInvalidResponse, classRaw)
	}
	if err := json.Unmarshal(confRaw, &confidence); err != nil || confidence == nil {
		return Result{}, fmt.Errorf("%w: confidence %s is not a number", ErrInvalidResponse, confRaw)
	}
	result := Result{Class: int(*class), Confidence: *confidence}
	return result, nil
}
