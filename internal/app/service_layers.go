package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"collab/api/internal/rbac"
	"collab/api/internal/store"
	"collab/api/internal/util"
)

const (
	maxLayerNameLen = 255
	maxLayerTypeLen = 50
)

var errLayerNotFound = domainError(http.StatusNotFound, "NOT_FOUND", "Layer not found", nil)

type LayerView struct {
	ID               string          `json:"id"`
	ProjectID        string          `json:"project_id"`
	Name             string          `json:"name"`
	LayerType        string          `json:"layer_type"`
	IsVisible        bool            `json:"is_visible"`
	IsLocked         bool            `json:"is_locked"`
	ZIndex           int             `json:"z_index"`
	Geometry         *string         `json:"geometry"`
	Style            json.RawMessage `json:"style"`
	Properties       json.RawMessage `json:"properties"`
	ExternalObjectID *string         `json:"external_object_id"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// LayerInput is the body of layer create and update. Nil fields keep their
// current value on update.
type LayerInput struct {
	Name             *string         `json:"name"`
	LayerType        *string         `json:"layer_type"`
	IsVisible        *bool           `json:"is_visible"`
	IsLocked         *bool           `json:"is_locked"`
	ZIndex           *int            `json:"z_index"`
	Geometry         *string         `json:"geometry"`
	Style            json.RawMessage `json:"style"`
	Properties       json.RawMessage `json:"properties"`
	ExternalObjectID *string         `json:"external_object_id"`
}

// ListLayers is open to anyone who can read the project.
func (s *Service) ListLayers(ctx context.Context, principal Principal, projectID string) (map[string]any, error) {
	if _, err := s.authorizeProject(ctx, principal, projectID, rbac.ActionRead); err != nil {
		return nil, err
	}
	items, err := s.store.ListLayers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	layers := make([]LayerView, 0, len(items))
	for _, item := range items {
		layers = append(layers, layerView(item))
	}
	return map[string]any{
		"layers": layers,
		"total":  len(layers),
	}, nil
}

func (s *Service) CreateLayer(ctx context.Context, principal Principal, projectID string, input LayerInput) (LayerView, error) {
	if _, err := s.authorizeProject(ctx, principal, projectID, rbac.ActionAdmin); err != nil {
		return LayerView{}, err
	}
	item := store.Layer{
		ID:        util.NewUUID(),
		ProjectID: projectID,
		IsVisible: true,
	}
	if input.Name == nil || input.LayerType == nil {
		return LayerView{}, validationError("name and layer_type are required")
	}
	if err := applyLayerInput(&item, input); err != nil {
		return LayerView{}, err
	}

	created, err := s.store.CreateLayer(ctx, item)
	if err != nil {
		return LayerView{}, err
	}
	s.logger.Info("layer created", "project_id", projectID, "layer_id", created.ID, "layer_type", created.LayerType)
	return layerView(created), nil
}

func (s *Service) UpdateLayer(ctx context.Context, principal Principal, projectID, layerID string, input LayerInput) (LayerView, error) {
	if _, err := s.authorizeProject(ctx, principal, projectID, rbac.ActionAdmin); err != nil {
		return LayerView{}, err
	}
	item, err := s.store.GetLayer(ctx, projectID, layerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LayerView{}, errLayerNotFound
		}
		return LayerView{}, err
	}
	if err := applyLayerInput(&item, input); err != nil {
		return LayerView{}, err
	}

	updated, err := s.store.UpdateLayer(ctx, item)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LayerView{}, errLayerNotFound
		}
		return LayerView{}, err
	}
	return layerView(updated), nil
}

func (s *Service) DeleteLayer(ctx context.Context, principal Principal, projectID, layerID string) error {
	if _, err := s.authorizeProject(ctx, principal, projectID, rbac.ActionAdmin); err != nil {
		return err
	}
	if err := s.store.DeleteLayer(ctx, projectID, layerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errLayerNotFound
		}
		return err
	}
	s.logger.Info("layer deleted", "project_id", projectID, "layer_id", layerID, "user_id", principal.User.ID)
	return nil
}

func applyLayerInput(item *store.Layer, input LayerInput) error {
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" || len(name) > maxLayerNameLen {
			return validationError(fmt.Sprintf("name must be 1-%d characters", maxLayerNameLen))
		}
		item.Name = name
	}
	if input.LayerType != nil {
		layerType := strings.TrimSpace(*input.LayerType)
		if layerType == "" || len(layerType) > maxLayerTypeLen {
			return validationError(fmt.Sprintf("layer_type must be 1-%d characters", maxLayerTypeLen))
		}
		item.LayerType = layerType
	}
	if input.IsVisible != nil {
		item.IsVisible = *input.IsVisible
	}
	if input.IsLocked != nil {
		item.IsLocked = *input.IsLocked
	}
	if input.ZIndex != nil {
		item.ZIndex = *input.ZIndex
	}
	if input.Geometry != nil {
		item.Geometry = input.Geometry
	}
	if input.ExternalObjectID != nil {
		item.ExternalObjectID = input.ExternalObjectID
	}
	if input.Style != nil {
		if err := validateJSONObject("style", input.Style); err != nil {
			return err
		}
		item.Style = input.Style
	}
	if input.Properties != nil {
		if err := validateJSONObject("properties", input.Properties); err != nil {
			return err
		}
		item.Properties = input.Properties
	}
	return nil
}

func layerView(item store.Layer) LayerView {
	return LayerView{
		ID:               item.ID,
		ProjectID:        item.ProjectID,
		Name:             item.Name,
		LayerType:        item.LayerType,
		IsVisible:        item.IsVisible,
		IsLocked:         item.IsLocked,
		ZIndex:           item.ZIndex,
		Geometry:         item.Geometry,
		Style:            emptyObject(item.Style),
		Properties:       emptyObject(item.Properties),
		ExternalObjectID: item.ExternalObjectID,
		CreatedAt:        item.CreatedAt,
		UpdatedAt:        item.UpdatedAt,
	}
}
