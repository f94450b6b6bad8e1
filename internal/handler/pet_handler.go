package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/tamago/internal/middleware"
	"github.com/hitoshi/tamago/internal/model"
)

// PetServiceInterface はペットハンドラーが必要とするサービスインターフェース。
type PetServiceInterface interface {
	Get(ctx context.Context, ownerID string) (*model.Pet, error)
	ApplyDelta(ctx context.Context, ownerID string, hungerDelta, funDelta int) (*model.Pet, error)
	SetAvatar(ctx context.Context, ownerID, avatarRef string) (*model.Pet, error)
}

// PetHandler はペット状態のHTTPハンドラー。
type PetHandler struct {
	service PetServiceInterface
}

// NewPetHandler はPetHandlerを生成する。
func NewPetHandler(service PetServiceInterface) *PetHandler {
	return &PetHandler{service: service}
}

type petResponse struct {
	Hunger    int       `json:"hunger"`
	Fun       int       `json:"fun"`
	AvatarRef string    `json:"avatarRef"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type petPatchRequest struct {
	HungerDelta *int    `json:"hungerDelta"`
	FunDelta    *int    `json:"funDelta"`
	AvatarRef   *string `json:"avatarRef"`
}

// Get は現在のペット状態を返す。
// GET /pet
func (h *PetHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	pet, err := h.service.Get(r.Context(), ownerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writePetResponse(w, pet)
}

// Patch はペットの状態値または見た目を部分更新する。
// 状態値の変化量はサービス層で[0,100]へ飽和される。
// PATCH /pet
func (h *PetHandler) Patch(w http.ResponseWriter, r *http.Request) {
	ownerID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req petPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディが不正です"))
		return
	}
	if req.HungerDelta == nil && req.FunDelta == nil && req.AvatarRef == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("更新対象のフィールドがありません"))
		return
	}

	var pet *model.Pet

	if req.HungerDelta != nil || req.FunDelta != nil {
		hungerDelta := 0
		if req.HungerDelta != nil {
			hungerDelta = *req.HungerDelta
		}
		funDelta := 0
		if req.FunDelta != nil {
			funDelta = *req.FunDelta
		}

		pet, err = h.service.ApplyDelta(r.Context(), ownerID, hungerDelta, funDelta)
		if err != nil {
			handleServiceError(w, err)
			return
		}
	}

	if req.AvatarRef != nil {
		pet, err = h.service.SetAvatar(r.Context(), ownerID, *req.AvatarRef)
		if err != nil {
			handleServiceError(w, err)
			return
		}
	}

	writePetResponse(w, pet)
}

// writePetResponse はペット状態をJSONで書き込む。
func writePetResponse(w http.ResponseWriter, pet *model.Pet) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(petResponse{
		Hunger:    pet.Hunger,
		Fun:       pet.Fun,
		AvatarRef: pet.AvatarRef,
		UpdatedAt: pet.UpdatedAt,
	})
}
