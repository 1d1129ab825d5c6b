package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/steam-achievements/internal/domain"
	"github.com/steam-achievements/internal/session"
	"github.com/steam-achievements/internal/token"
	"github.com/steam-achievements/internal/websocket"
)

type fakeAchievements struct {
	view *domain.GameAchievements
	err  error

	gotSteamID string
	gotAppID   uint32
}

func (f *fakeAchievements) GameAchievements(ctx context.Context, steamID string, appID uint32) (*domain.GameAchievements, error) {
	f.gotSteamID = steamID
	f.gotAppID = appID
	return f.view, f.err
}

type fakeMints struct {
	result *domain.MintResult
	err    error

	gotReq domain.MintRequest
}

func (f *fakeMints) Mint(ctx context.Context, req domain.MintRequest) (*domain.MintResult, error) {
	f.gotReq = req
	return f.result, f.err
}

type fakeRecords struct {
	records []domain.MintRecord
	err     error
}

func (f *fakeRecords) ListByOwner(ctx context.Context, owner string) ([]domain.MintRecord, error) {
	return f.records, f.err
}

func newTestHandler(ach *fakeAchievements, mints *fakeMints, records *fakeRecords) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(ach, mints, records, session.NewHeaderResolver(""), websocket.NewHub(logger), logger)
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp
}

func TestGetAchievements(t *testing.T) {
	ach := &fakeAchievements{view: &domain.GameAchievements{
		GameName: "Team Fortress 2",
		SteamID:  "76561198000000001",
		Achievements: []domain.CombinedAchievement{
			{Name: "TF_PLAY_GAME", Achieved: true, Percent: 80},
		},
	}}
	h := newTestHandler(ach, &fakeMints{}, &fakeRecords{})

	req := httptest.NewRequest("GET", "/api/v1/achievements?appId=440", nil)
	req.Header.Set("X-Steam-ID", "76561198000000001")
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Errorf("success = false, error = %q", resp.Error)
	}
	if ach.gotSteamID != "76561198000000001" || ach.gotAppID != 440 {
		t.Errorf("service called with steamID=%q appID=%d", ach.gotSteamID, ach.gotAppID)
	}
}

func TestGetAchievementsStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		steamID    string
		appID      string
		serviceErr error
		wantStatus int
	}{
		{"missing identity", "", "440", nil, http.StatusBadRequest},
		{"missing app id", "76561198000000001", "", nil, http.StatusBadRequest},
		{"zero app id", "76561198000000001", "0", nil, http.StatusBadRequest},
		{"non-numeric app id", "76561198000000001", "dota", nil, http.StatusBadRequest},
		{"private profile", "76561198000000001", "440", fmt.Errorf("%w: profile is private", domain.ErrProfileUnreadable), http.StatusNotFound},
		{"steam down", "76561198000000001", "440", fmt.Errorf("%w: status 503", domain.ErrUpstreamUnavailable), http.StatusBadGateway},
		{"malformed upstream", "76561198000000001", "440", domain.ErrMalformedUpstreamResponse, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(&fakeAchievements{err: tt.serviceErr}, &fakeMints{}, &fakeRecords{})

			req := httptest.NewRequest("GET", "/api/v1/achievements?appId="+tt.appID, nil)
			if tt.steamID != "" {
				req.Header.Set("X-Steam-ID", tt.steamID)
			}
			rec := httptest.NewRecorder()
			h.Router().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if resp := decodeResponse(t, rec); resp.Success {
				t.Error("success = true on error response")
			}
		})
	}
}

func TestSubmitMint(t *testing.T) {
	mints := &fakeMints{result: &domain.MintResult{
		Stage:   domain.MintStageDone,
		TokenID: token.DeriveHex(440, "TF_PLAY_GAME"),
		TxHash:  "0xabc",
	}}
	h := newTestHandler(&fakeAchievements{}, mints, &fakeRecords{})

	body, _ := json.Marshal(domain.MintRequest{
		SteamID:       "spoofed",
		AppID:         440,
		AchievementID: "TF_PLAY_GAME",
		OwnerAddress:  "0x00000000000000000000000000000000000000aa",
	})
	req := httptest.NewRequest("POST", "/api/v1/mints", bytes.NewReader(body))
	req.Header.Set("X-Steam-ID", "76561198000000001")
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if mints.gotReq.SteamID != "76561198000000001" {
		t.Errorf("session identity did not override body steam_id, got %q", mints.gotReq.SteamID)
	}
}

func TestSubmitMintStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		stage      domain.MintStage
		err        error
		wantStatus int
	}{
		{"locked", domain.MintStageDerive, fmt.Errorf("%w: TF_GET_KILL", domain.ErrAchievementLocked), http.StatusForbidden},
		{"rejected", domain.MintStageConfirm, fmt.Errorf("%w: reverted", domain.ErrMintRejected), http.StatusConflict},
		{"steam down", domain.MintStageDerive, fmt.Errorf("%w: status 503", domain.ErrUpstreamUnavailable), http.StatusBadGateway},
		{"invalid", domain.MintStageDerive, domain.ErrInvalidRequest, http.StatusBadRequest},
		{"submit failure", domain.MintStageSubmit, fmt.Errorf("relayer: connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mints := &fakeMints{
				result: &domain.MintResult{Stage: tt.stage, Error: tt.err.Error()},
				err:    tt.err,
			}
			h := newTestHandler(&fakeAchievements{}, mints, &fakeRecords{})

			body, _ := json.Marshal(domain.MintRequest{
				AppID:         440,
				AchievementID: "TF_GET_KILL",
				OwnerAddress:  "0x00000000000000000000000000000000000000aa",
			})
			req := httptest.NewRequest("POST", "/api/v1/mints", bytes.NewReader(body))
			req.Header.Set("X-Steam-ID", "76561198000000001")
			rec := httptest.NewRecorder()
			h.Router().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			resp := decodeResponse(t, rec)
			if resp.Success {
				t.Error("success = true on error response")
			}
			if resp.Error == "" {
				t.Error("error message missing from response")
			}
		})
	}
}

func TestSubmitMintRejectsBadBody(t *testing.T) {
	h := newTestHandler(&fakeAchievements{}, &fakeMints{}, &fakeRecords{})

	req := httptest.NewRequest("POST", "/api/v1/mints", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListMints(t *testing.T) {
	records := &fakeRecords{records: []domain.MintRecord{
		{OwnerAddress: "0x00000000000000000000000000000000000000aa", TokenID: "0x01", AppID: 440},
	}}
	h := newTestHandler(&fakeAchievements{}, &fakeMints{}, records)

	req := httptest.NewRequest("GET", "/api/v1/mints?owner=0x00000000000000000000000000000000000000aa", nil)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	t.Run("missing owner", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/mints", nil)
		rec := httptest.NewRecorder()
		h.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestGetTokenID(t *testing.T) {
	h := newTestHandler(&fakeAchievements{}, &fakeMints{}, &fakeRecords{})

	req := httptest.NewRequest("GET", "/api/v1/tokens/440/TF_PLAY_GAME", nil)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data = %T", resp.Data)
	}
	if data["token_id"] != token.DeriveHex(440, "TF_PLAY_GAME") {
		t.Errorf("token_id = %v", data["token_id"])
	}

	t.Run("bad app id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/tokens/zero/TF_PLAY_GAME", nil)
		rec := httptest.NewRecorder()
		h.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestGetWebSocketStats(t *testing.T) {
	h := newTestHandler(&fakeAchievements{}, &fakeMints{}, &fakeRecords{})

	req := httptest.NewRequest("GET", "/api/v1/ws/stats", nil)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data = %T", resp.Data)
	}
	if data["total_connections"] != float64(0) {
		t.Errorf("total_connections = %v", data["total_connections"])
	}
	if _, present := data["subscribers"]; present {
		t.Error("subscribers reported without an appId filter")
	}

	t.Run("scoped to app", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/ws/stats?appId=440", nil)
		rec := httptest.NewRecorder()
		h.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		resp := decodeResponse(t, rec)
		data := resp.Data.(map[string]interface{})
		if data["subscribers"] != float64(0) {
			t.Errorf("subscribers = %v", data["subscribers"])
		}
		if data["app_id"] != float64(440) {
			t.Errorf("app_id = %v", data["app_id"])
		}
	})

	t.Run("bad app id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/ws/stats?appId=dota", nil)
		rec := httptest.NewRecorder()
		h.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestHandler(&fakeAchievements{}, &fakeMints{}, &fakeRecords{})

	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		h.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
}
