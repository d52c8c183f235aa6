package handler_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/dispatch"
	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/kiwari-pos/fulfillment/internal/service"
)

func testDelivery(branchID uuid.UUID, status string) database.Delivery {
	return database.Delivery{
		ID:             uuid.New(),
		OrderID:        uuid.New(),
		BranchID:       branchID,
		Status:         status,
		AssignmentType: enum.AssignmentTypeManual,
		Address:        "Jl. Merdeka 1",
		Version:        1,
	}
}

func TestDeliveryGetAndList(t *testing.T) {
	branchID := uuid.New()
	rider := uuid.New()
	d := testDelivery(branchID, enum.DeliveryStatusAssigned)
	var listed database.ListDeliveriesParams

	store := &mockStore{
		getDeliveryFn: func(ctx context.Context, arg database.GetDeliveryParams) (database.Delivery, error) {
			if arg.ID == d.ID && arg.BranchID == branchID {
				return d, nil
			}
			return (&mockStore{}).GetDelivery(ctx, arg)
		},
		listDeliveriesFn: func(ctx context.Context, arg database.ListDeliveriesParams) ([]database.Delivery, error) {
			listed = arg
			return []database.Delivery{d}, nil
		},
	}
	router := setupRouter(&mockEngine{}, store)
	base := "/branches/" + branchID.String() + "/deliveries"

	rr := doAuthRequest(t, router, "GET", base+"/"+d.ID.String(), nil, testClaims(branchID))
	assertStatus(t, rr, http.StatusOK)
	if decodeResponse(t, rr)["status"] != enum.DeliveryStatusAssigned {
		t.Error("expected delivery body")
	}

	rr = doAuthRequest(t, router, "GET", base+"/"+uuid.NewString(), nil, testClaims(branchID))
	assertStatus(t, rr, http.StatusNotFound)

	rr = doAuthRequest(t, router, "GET", base+"?status=assigned&rider_id="+rider.String(), nil, testClaims(branchID))
	assertStatus(t, rr, http.StatusOK)
	if listed.Status.String != "assigned" || listed.RiderID != (pgtype.UUID{Bytes: rider, Valid: true}) {
		t.Errorf("list params: got %+v", listed)
	}
}

func TestDeliveryAssign(t *testing.T) {
	branchID := uuid.New()
	claims := testClaims(branchID)
	id := uuid.New()

	tests := []struct {
		name       string
		body       map[string]interface{}
		err        error
		wantStatus int
	}{
		{"manual", map[string]interface{}{"rider_id": uuid.NewString()}, nil, http.StatusOK},
		{"auto", map[string]interface{}{"auto": true}, nil, http.StatusOK},
		{"both", map[string]interface{}{"auto": true, "rider_id": uuid.NewString()}, service.ErrRiderChoice, http.StatusBadRequest},
		{"no rider free", map[string]interface{}{"auto": true}, fmt.Errorf("auto assign: %w", dispatch.ErrNoRider), http.StatusUnprocessableEntity},
		{"rider full", map[string]interface{}{"rider_id": uuid.NewString()}, fmt.Errorf("%w: rider at capacity", service.ErrRiderUnavailable), http.StatusUnprocessableEntity},
		{"contended", map[string]interface{}{"auto": true}, service.ErrConflict, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got service.AssignDeliveryRequest
			svc := &mockEngine{
				assignDeliveryFn: func(ctx context.Context, req service.AssignDeliveryRequest) (*service.DeliveryResult, error) {
					got = req
					if tt.err != nil {
						return nil, tt.err
					}
					return &service.DeliveryResult{Delivery: testDelivery(branchID, enum.DeliveryStatusAssigned), Changed: true}, nil
				},
			}
			rr := doAuthRequest(t, setupRouter(svc, &mockStore{}), "POST",
				"/branches/"+branchID.String()+"/deliveries/"+id.String()+"/assign", tt.body, claims)
			assertStatus(t, rr, tt.wantStatus)
			if got.DeliveryID != id || got.Actor != claims.UserID {
				t.Errorf("request: got %+v", got)
			}
			if tt.wantStatus == http.StatusOK && decodeResponse(t, rr)["changed"] != true {
				t.Error("expected changed")
			}
		})
	}
}

func TestDeliveryUpdateStatus(t *testing.T) {
	branchID := uuid.New()
	var got service.UpdateDeliveryStatusRequest
	svc := &mockEngine{
		updateDeliveryStatusFn: func(ctx context.Context, req service.UpdateDeliveryStatusRequest) (*service.DeliveryResult, error) {
			got = req
			if req.Status == enum.DeliveryStatusDelivered {
				return nil, fmt.Errorf("delivery: %w: assigned -> delivered", service.ErrInvalidTransition)
			}
			return &service.DeliveryResult{Delivery: testDelivery(branchID, req.Status), Changed: true}, nil
		},
	}
	router := setupRouter(svc, &mockStore{})
	path := "/branches/" + branchID.String() + "/deliveries/" + uuid.NewString() + "/status"

	rr := doAuthRequest(t, router, "PATCH", path, map[string]string{"status": "failed", "reason": "no answer"}, testClaims(branchID))
	assertStatus(t, rr, http.StatusOK)
	if got.Status != "failed" || got.Reason != "no answer" {
		t.Errorf("request: got %+v", got)
	}

	rr = doAuthRequest(t, router, "PATCH", path, map[string]string{"status": "delivered"}, testClaims(branchID))
	assertStatus(t, rr, http.StatusConflict)
	assertErrorKind(t, rr, "invalid_transition")

	rr = doAuthRequest(t, router, "PATCH", path, map[string]string{}, testClaims(branchID))
	assertStatus(t, rr, http.StatusBadRequest)
}

func TestDeliveryRespond(t *testing.T) {
	branchID := uuid.New()
	rider := uuid.New()
	var got service.RespondToDeliveryRequest
	svc := &mockEngine{
		respondDeliveryFn: func(ctx context.Context, req service.RespondToDeliveryRequest) (*service.DeliveryResult, error) {
			got = req
			return &service.DeliveryResult{Delivery: testDelivery(branchID, enum.DeliveryStatusPendingAssignment), Changed: true}, nil
		},
	}
	router := setupRouter(svc, &mockStore{})
	path := "/branches/" + branchID.String() + "/deliveries/" + uuid.NewString() + "/respond"

	rr := doAuthRequest(t, router, "POST", path, map[string]interface{}{"rider_id": rider, "accept": false}, testClaims(branchID))
	assertStatus(t, rr, http.StatusOK)
	if got.RiderID != rider || got.Accept {
		t.Errorf("request: got %+v", got)
	}

	rr = doAuthRequest(t, router, "POST", path, map[string]interface{}{"accept": true}, testClaims(branchID))
	assertStatus(t, rr, http.StatusBadRequest)
}

func TestRiderLocation(t *testing.T) {
	branchID := uuid.New()
	rider := uuid.New()
	var got service.RiderLocationRequest
	svc := &mockEngine{
		recordLocationFn: func(ctx context.Context, req service.RiderLocationRequest) (*database.RiderLocation, error) {
			got = req
			if req.Latitude > 90 {
				return nil, service.ErrInvalidCoordinates
			}
			return &database.RiderLocation{ID: 41, RiderID: req.RiderID, Latitude: req.Latitude, Longitude: req.Longitude}, nil
		},
	}
	router := setupRouter(svc, &mockStore{})
	path := "/branches/" + branchID.String() + "/riders/" + rider.String() + "/location"

	rr := doAuthRequest(t, router, "POST", path, map[string]interface{}{"latitude": -6.2, "longitude": 106.8}, testClaims(branchID))
	assertStatus(t, rr, http.StatusCreated)
	if got.RiderID != rider || got.Latitude != -6.2 || got.Longitude != 106.8 || got.DeliveryID != uuid.Nil {
		t.Errorf("request: got %+v", got)
	}

	// The equator is a valid latitude; a missing field is not.
	rr = doAuthRequest(t, router, "POST", path, map[string]interface{}{"latitude": 0}, testClaims(branchID))
	assertStatus(t, rr, http.StatusBadRequest)

	rr = doAuthRequest(t, router, "POST", path, map[string]interface{}{"latitude": 91, "longitude": 0}, testClaims(branchID))
	assertStatus(t, rr, http.StatusBadRequest)
}
