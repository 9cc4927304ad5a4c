package client

import (
	"context"
	"net/url"
	"strings"
	"time"

	"carecal/pkg/model"
)

const defaultHealthWait = 30 * time.Second

// AvailabilityClient talks to the availability service: rules, slots and statistics.
type AvailabilityClient struct {
	httpClient *HttpClient
}

func NewAvailabilityClient(baseURL string) *AvailabilityClient {
	return &AvailabilityClient{httpClient: NewHttpClient(baseURL)}
}

func (c *AvailabilityClient) CreateRule(ctx context.Context, actor model.Actor, providerID string, rule *model.AvailabilityRule) (*model.AvailabilityRule, error) {
	resp, err := c.httpClient.As(actor).POST(ctx, providerPath(providerID, "rules"), rule)
	if err != nil {
		return nil, err
	}
	var created model.AvailabilityRule
	if err := resp.DecodeData(&created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ListSlots returns the first page of a provider's slots between from and to,
// optionally restricted to statuses.
func (c *AvailabilityClient) ListSlots(ctx context.Context, actor model.Actor, providerID string, from string, to string, statuses ...model.SlotStatus) ([]*model.Slot, error) {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, st := range statuses {
			names[i] = string(st)
		}
		q.Set("status", strings.Join(names, ","))
	}

	resp, err := c.httpClient.As(actor).GET(ctx, providerPath(providerID, "slots")+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	var slots []*model.Slot
	if err := resp.DecodeData(&slots); err != nil {
		return nil, err
	}
	return slots, nil
}

func (c *AvailabilityClient) Statistics(ctx context.Context, actor model.Actor, providerID string, from string, to string) (*model.ProviderStatistics, error) {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)

	resp, err := c.httpClient.As(actor).GET(ctx, providerPath(providerID, "statistics")+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	var stats model.ProviderStatistics
	if err := resp.DecodeData(&stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *AvailabilityClient) WaitForHealthy(ctx context.Context) error {
	return c.httpClient.WaitForHealthy(ctx, defaultHealthWait)
}

// BookingClient talks to the bookings service.
type BookingClient struct {
	httpClient *HttpClient
}

func NewBookingClient(baseURL string) *BookingClient {
	return &BookingClient{httpClient: NewHttpClient(baseURL)}
}

func (c *BookingClient) Book(ctx context.Context, actor model.Actor, slotID string, req *model.BookingRequest) (*model.Slot, error) {
	return c.slotAction(ctx, actor, slotID, "bookings", req)
}

func (c *BookingClient) Cancel(ctx context.Context, actor model.Actor, slotID string, req *model.CancellationRequest) (*model.Slot, error) {
	return c.slotAction(ctx, actor, slotID, "cancel", req)
}

func (c *BookingClient) Confirm(ctx context.Context, actor model.Actor, slotID string) (*model.Slot, error) {
	return c.slotAction(ctx, actor, slotID, "confirm", nil)
}

func (c *BookingClient) WaitForHealthy(ctx context.Context) error {
	return c.httpClient.WaitForHealthy(ctx, defaultHealthWait)
}

func (c *BookingClient) slotAction(ctx context.Context, actor model.Actor, slotID string, action string, body any) (*model.Slot, error) {
	resp, err := c.httpClient.As(actor).POST(ctx, "/api/v1/slots/"+url.PathEscape(slotID)+"/"+action, body)
	if err != nil {
		return nil, err
	}
	var slot model.Slot
	if err := resp.DecodeData(&slot); err != nil {
		return nil, err
	}
	return &slot, nil
}

func providerPath(providerID string, resource string) string {
	return "/api/v1/providers/" + url.PathEscape(providerID) + "/" + resource
}
