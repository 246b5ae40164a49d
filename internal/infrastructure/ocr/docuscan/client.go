// Package docuscan is the HTTP adapter for the remote optical-extraction
// and classification service.
package docuscan

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/docuflow/capture/internal/core/ports"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type uploadSessionRequest struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Format    string `json:"format"`
}

type uploadSessionResponse struct {
	UploadID  string `json:"upload_id"`
	MaxChunks int    `json:"max_chunks"`
}

func (c *Client) CreateUploadSession(ctx context.Context, meta ports.UploadMeta) (ports.UploadSession, error) {
	if meta.CorrelationID != "" {
		ctx = withCorrelation(ctx, meta.CorrelationID)
	}
	request := uploadSessionRequest{
		Filename:  meta.Filename,
		SizeBytes: meta.SizeBytes,
		Format:    meta.Format,
	}

	var response uploadSessionResponse
	if err := c.postJSON(ctx, "/v1/uploads", request, &response, "create_upload_session"); err != nil {
		return ports.UploadSession{}, err
	}
	if response.UploadID == "" {
		return ports.UploadSession{}, fmt.Errorf("create_upload_session: backend returned empty upload id")
	}
	return ports.UploadSession{
		UploadID:  response.UploadID,
		MaxChunks: response.MaxChunks,
	}, nil
}

func (c *Client) UploadChunk(ctx context.Context, uploadID string, chunkIndex int, data []byte) error {
	path := fmt.Sprintf("/v1/uploads/%s/chunks/%d", uploadID, chunkIndex)
	return c.postBytes(ctx, path, data, "upload_chunk")
}

type startProcessingResponse struct {
	JobID string `json:"job_id"`
}

func (c *Client) StartProcessing(ctx context.Context, uploadID string) (string, error) {
	path := fmt.Sprintf("/v1/uploads/%s/process", uploadID)

	var response startProcessingResponse
	if err := c.postJSON(ctx, path, struct{}{}, &response, "start_processing"); err != nil {
		return "", err
	}
	if response.JobID == "" {
		return "", fmt.Errorf("start_processing: backend returned empty job id")
	}
	return response.JobID, nil
}

type jobStatusResponse struct {
	Status           string             `json:"status"`
	Progress         float64            `json:"progress"`
	Stage            string             `json:"stage"`
	StageDescription string             `json:"stage_description"`
	Result           *jobResultResponse `json:"result,omitempty"`
	Error            string             `json:"error,omitempty"`
}

type jobResultResponse struct {
	Text           string                 `json:"text"`
	Classification jobClassification      `json:"classification"`
	Confidence     float64                `json:"confidence"`
	Extra          map[string]interface{} `json:"extra,omitempty"`
}

type jobClassification struct {
	Date       string  `json:"date"`
	Category   string  `json:"category"`
	Amount     string  `json:"amount"`
	Reference  string  `json:"reference"`
	TaxNumber  string  `json:"tax_number"`
	Vendor     string  `json:"vendor"`
	Location   string  `json:"location"`
	Confidence float64 `json:"confidence"`
}

func (c *Client) GetJobStatus(ctx context.Context, jobID string) (ports.JobStatus, error) {
	path := fmt.Sprintf("/v1/jobs/%s", jobID)

	var response jobStatusResponse
	if err := c.getJSON(ctx, path, &response, "get_job_status"); err != nil {
		return ports.JobStatus{}, err
	}
	return toJobStatus(response), nil
}

func toJobStatus(response jobStatusResponse) ports.JobStatus {
	status := ports.JobStatus{
		State:            ports.JobState(response.Status),
		Progress:         response.Progress,
		Stage:            response.Stage,
		StageDescription: response.StageDescription,
		ErrorMessage:     response.Error,
	}
	if response.Result != nil {
		cls := response.Result.Classification
		status.Result = &ports.RemoteResult{
			Text:       response.Result.Text,
			Confidence: response.Result.Confidence,
		}
		status.Result.Classification.Date = cls.Date
		status.Result.Classification.Category = cls.Category
		status.Result.Classification.Amount = cls.Amount
		status.Result.Classification.Reference = cls.Reference
		status.Result.Classification.TaxNumber = cls.TaxNumber
		status.Result.Classification.Vendor = cls.Vendor
		status.Result.Classification.Location = cls.Location
		status.Result.Classification.Confidence = cls.Confidence
	}
	return status
}

// CancelJob asks the backend to stop a job. Best effort by contract: the
// caller treats failures as advisory.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	path := fmt.Sprintf("/v1/jobs/%s", jobID)
	return c.delete(ctx, path, "cancel_job")
}
