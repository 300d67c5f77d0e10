package acuant

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/example/id-bridge/internal/sdkconfig"
)

// Side identifies a document side for upload.
type Side int

const (
	SideFront Side = 0
	SideBack  Side = 1
)

func (s Side) String() string {
	if s == SideBack {
		return "back"
	}
	return "front"
}

// InstanceOptions mirrors the AssureID document instance request.
type InstanceOptions struct {
	AuthenticationSensitivity int        `json:"AuthenticationSensitivity"`
	ClassificationMode        int        `json:"ClassificationMode"`
	Device                    DeviceInfo `json:"Device"`
	ImageCroppingExpectedSize int        `json:"ImageCroppingExpectedSize"`
	ImageCroppingMode         int        `json:"ImageCroppingMode"`
	ManualDocumentType        any        `json:"ManualDocumentType"`
	ProcessMode               int        `json:"ProcessMode"`
	SubscriptionID            string     `json:"SubscriptionId"`
}

// DeviceInfo describes the capture device to AssureID.
type DeviceInfo struct {
	HasContactlessChipReader bool       `json:"HasContactlessChipReader"`
	HasMagneticStripeReader  bool       `json:"HasMagneticStripeReader"`
	SerialNumber             string     `json:"SerialNumber"`
	Type                     DeviceType `json:"Type"`
}

// DeviceType is the manufacturer/model/sensor triple.
type DeviceType struct {
	Manufacturer string `json:"Manufacturer"`
	Model        string `json:"Model"`
	SensorType   int    `json:"SensorType"`
}

// sensorMobile is the AssureID sensor type for phone cameras.
const sensorMobile = 3

// DefaultInstanceOptions returns the options used when the caller gives none.
func DefaultInstanceOptions(subscriptionID, deviceID string) InstanceOptions {
	return InstanceOptions{
		Device: DeviceInfo{
			SerialNumber: deviceID,
			Type: DeviceType{
				Manufacturer: "id-bridge",
				Model:        "paired-device",
				SensorType:   sensorMobile,
			},
		},
		SubscriptionID: subscriptionID,
	}
}

// IDResult is the flat OCR payload extracted from an AssureID document.
type IDResult struct {
	FullName              string
	FirstName             string
	LastName              string
	DateOfBirth           string
	DocumentNumber        string
	ExpirationDate        string
	IssueDate             string
	Address               string
	Country               string
	Nationality           string
	Sex                   string
	DocumentType          string
	ClassificationDetails string
	Result                int
}

type documentField struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

type documentResponse struct {
	InstanceID     string `json:"InstanceId"`
	Result         int    `json:"Result"`
	Classification struct {
		Type struct {
			ClassName   string `json:"ClassName"`
			Name        string `json:"Name"`
			CountryCode string `json:"CountryCode"`
		} `json:"Type"`
	} `json:"Classification"`
	Fields []documentField `json:"Fields"`
}

// fieldNames lists the AssureID field names feeding each result field, in preference order.
var fieldNames = map[string][]string{
	"fullName":       {"Full Name"},
	"firstName":      {"First Name", "Given Name"},
	"lastName":       {"Surname", "Last Name"},
	"dateOfBirth":    {"Birth Date"},
	"documentNumber": {"Document Number"},
	"expirationDate": {"Expiration Date"},
	"issueDate":      {"Issue Date"},
	"address":        {"Address"},
	"country":        {"Issuing State Name", "Issuing State Code"},
	"nationality":    {"Nationality Name", "Nationality Code"},
	"sex":            {"Sex"},
}

var msDate = regexp.MustCompile(`^/Date\((-?\d+)([+-]\d{4})?\)/$`)

// CreateInstance creates a document processing instance and returns its id.
func (c *Client) CreateInstance(ctx context.Context, cfg *sdkconfig.Config, opts InstanceOptions) (string, error) {
	var id string
	err := c.do(ctx, request{
		service: "assureid",
		method:  http.MethodPost,
		url:     join(cfg.Endpoints.DocumentIdentity, "/AssureIDService/Document/Instance"),
		body:    opts,
		cfg:     cfg,
	}, &id)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", &APIError{Service: "assureid", Status: http.StatusOK, Description: "empty instance id"}
	}
	return id, nil
}

// UploadImage uploads one evaluated side image to the instance.
func (c *Client) UploadImage(ctx context.Context, cfg *sdkconfig.Config, instanceID string, side Side, image []byte) error {
	q := url.Values{}
	q.Set("side", strconv.Itoa(int(side)))
	q.Set("light", "0")
	q.Set("metrics", "false")
	return c.do(ctx, request{
		service: "assureid",
		method:  http.MethodPost,
		url:     join(cfg.Endpoints.DocumentIdentity, "/AssureIDService/Document/"+url.PathEscape(instanceID)+"/Image?"+q.Encode()),
		raw:     image,
		cfg:     cfg,
	}, nil)
}

// GetDocument fetches the processed document and flattens its OCR fields.
func (c *Client) GetDocument(ctx context.Context, cfg *sdkconfig.Config, instanceID string) (*IDResult, error) {
	var doc documentResponse
	err := c.do(ctx, request{
		service: "assureid",
		method:  http.MethodGet,
		url:     join(cfg.Endpoints.DocumentIdentity, "/AssureIDService/Document/"+url.PathEscape(instanceID)),
		cfg:     cfg,
	}, &doc)
	if err != nil {
		return nil, err
	}
	return flatten(&doc), nil
}

// DeleteInstance removes the server-side instance.
func (c *Client) DeleteInstance(ctx context.Context, cfg *sdkconfig.Config, instanceID string) error {
	return c.do(ctx, request{
		service: "assureid",
		method:  http.MethodDelete,
		url:     join(cfg.Endpoints.DocumentIdentity, "/AssureIDService/Document/"+url.PathEscape(instanceID)),
		cfg:     cfg,
	}, nil)
}

func flatten(doc *documentResponse) *IDResult {
	values := make(map[string]string, len(doc.Fields))
	for _, f := range doc.Fields {
		if _, seen := values[f.Name]; !seen && strings.TrimSpace(f.Value) != "" {
			values[f.Name] = strings.TrimSpace(f.Value)
		}
	}
	get := func(key string) string {
		for _, name := range fieldNames[key] {
			if v, ok := values[name]; ok {
				return normalizeDate(v)
			}
		}
		return ""
	}

	return &IDResult{
		FullName:              get("fullName"),
		FirstName:             get("firstName"),
		LastName:              get("lastName"),
		DateOfBirth:           get("dateOfBirth"),
		DocumentNumber:        get("documentNumber"),
		ExpirationDate:        get("expirationDate"),
		IssueDate:             get("issueDate"),
		Address:               get("address"),
		Country:               get("country"),
		Nationality:           get("nationality"),
		Sex:                   get("sex"),
		DocumentType:          doc.Classification.Type.ClassName,
		ClassificationDetails: doc.Classification.Type.Name,
		Result:                doc.Result,
	}
}

// normalizeDate rewrites AssureID "/Date(ms)/" values as YYYY-MM-DD and leaves
// everything else untouched.
func normalizeDate(v string) string {
	m := msDate.FindStringSubmatch(v)
	if m == nil {
		return v
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return v
	}
	return time.UnixMilli(ms).UTC().Format(time.DateOnly)
}

// String is used in log lines only.
func (r *IDResult) String() string {
	return fmt.Sprintf("IDResult{type=%q result=%d}", r.DocumentType, r.Result)
}
