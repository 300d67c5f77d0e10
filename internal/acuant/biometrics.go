package acuant

import (
	"context"
	"net/http"

	"github.com/example/id-bridge/internal/imagecodec"
	"github.com/example/id-bridge/internal/sdkconfig"
)

// LivenessResponse is the passive liveness service reply.
type LivenessResponse struct {
	LivenessResult *struct {
		LivenessAssessment string `json:"LivenessAssessment"`
		Score              int    `json:"Score"`
	} `json:"LivenessResult"`
	Error         string `json:"Error"`
	ErrorCode     string `json:"ErrorCode"`
	TransactionID string `json:"TransactionId"`
}

// VendorError is an error embedded in an otherwise successful response.
type VendorError struct {
	Code        string `json:"ErrorCode"`
	Description string `json:"Description"`
}

// FaceMatchResponse is the FRM face match reply.
type FaceMatchResponse struct {
	IsMatch       bool         `json:"IsMatch"`
	Score         int          `json:"Score"`
	TransactionID string       `json:"TransactionId"`
	Error         *VendorError `json:"Error"`
}

type subscriptionSettings struct {
	SubscriptionID     string            `json:"SubscriptionId,omitempty"`
	AdditionalSettings map[string]string `json:"AdditionalSettings,omitempty"`
}

// PassiveLiveness submits one face image for liveness assessment.
func (c *Client) PassiveLiveness(ctx context.Context, cfg *sdkconfig.Config, jpeg []byte) (*LivenessResponse, error) {
	body := struct {
		Settings subscriptionSettings `json:"Settings"`
		Image    string               `json:"Image"`
	}{
		Settings: subscriptionSettings{
			SubscriptionID:     cfg.SubscriptionID(),
			AdditionalSettings: map[string]string{"OS": "UNKNOWN"},
		},
		Image: imagecodec.EncodeBytes(jpeg),
	}
	var resp LivenessResponse
	err := c.do(ctx, request{
		service: "passlive",
		method:  http.MethodPost,
		url:     join(cfg.Endpoints.Liveness, "/api/v1/liveness"),
		body:    body,
		cfg:     cfg,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// FaceMatch compares two face images.
func (c *Client) FaceMatch(ctx context.Context, cfg *sdkconfig.Config, faceOne, faceTwo []byte) (*FaceMatchResponse, error) {
	body := struct {
		Data struct {
			ImageOne string `json:"ImageOne"`
			ImageTwo string `json:"ImageTwo"`
		} `json:"Data"`
		Settings subscriptionSettings `json:"Settings"`
	}{}
	body.Data.ImageOne = imagecodec.EncodeBytes(faceOne)
	body.Data.ImageTwo = imagecodec.EncodeBytes(faceTwo)
	body.Settings.SubscriptionID = cfg.SubscriptionID()

	var resp FaceMatchResponse
	err := c.do(ctx, request{
		service: "frm",
		method:  http.MethodPost,
		url:     join(cfg.Endpoints.FaceRecognition, "/api/v1/facematch"),
		body:    body,
		cfg:     cfg,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
