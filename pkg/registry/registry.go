// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"template-ingest/internal/common/validation"
)

const DefaultPath = "configs/activity-registry.json"

func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg ActivityRegistry
	err = json.Unmarshal(data, &reg)
	return &reg, err
}

// LoadOrNew returns an empty registry when path does not exist yet.
func LoadOrNew(path string) (*ActivityRegistry, error) {
	reg, err := LoadRegistry(path)
	if err == nil {
		return reg, nil
	}
	if os.IsNotExist(err) {
		return &ActivityRegistry{
			Version:     "1.0.0",
			LastUpdated: time.Now().Format(time.RFC3339),
			Activities:  []Activity{},
		}, nil
	}
	return nil, fmt.Errorf("failed to load registry: %w", err)
}

func SaveRegistry(reg *ActivityRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

func (r *ActivityRegistry) Find(id string) (*Activity, bool) {
	for i := range r.Activities {
		if r.Activities[i].ID == id {
			return &r.Activities[i], true
		}
	}
	return nil, false
}

func (r *ActivityRegistry) Add(activity Activity) error {
	if _, exists := r.Find(activity.ID); exists {
		return fmt.Errorf("activity with ID %s already exists", activity.ID)
	}
	r.Activities = append(r.Activities, activity)
	r.LastUpdated = time.Now().Format(time.RFC3339)
	return nil
}

// Update sets a single scalar field on an activity.
func (r *ActivityRegistry) Update(id, field, value string) error {
	activity, ok := r.Find(id)
	if !ok {
		return fmt.Errorf("activity with ID %s not found", id)
	}

	switch field {
	case "status":
		activity.ImplementationStatus = value
	case "version":
		activity.Version = value
	case "displayName":
		activity.DisplayName = value
	case "description":
		activity.Description = value
	case "category":
		activity.Category = value
	case "taskType":
		activity.TaskType = value
	case "timeout":
		activity.Timeout = value
	case "retries":
		retries, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid retries value: %w", err)
		}
		activity.Retries = retries
	default:
		return fmt.Errorf("unknown field: %s", field)
	}

	r.LastUpdated = time.Now().Format(time.RFC3339)
	return nil
}

// Validate checks required fields, unique ids and task type naming. Declared
// schemas must compile and a declared timeout must parse.
func (r *ActivityRegistry) Validate() error {
	if len(r.Activities) == 0 {
		return fmt.Errorf("registry contains no activities")
	}

	ids := make(map[string]bool)
	for _, activity := range r.Activities {
		if activity.ID == "" {
			return fmt.Errorf("activity missing required field: ID")
		}
		if ids[activity.ID] {
			return fmt.Errorf("duplicate activity ID: %s", activity.ID)
		}
		ids[activity.ID] = true

		if activity.DisplayName == "" {
			return fmt.Errorf("activity %s missing required field: DisplayName", activity.ID)
		}
		if activity.TaskType == "" {
			return fmt.Errorf("activity %s missing required field: TaskType", activity.ID)
		}
		if activity.Category == "" {
			return fmt.Errorf("activity %s missing required field: Category", activity.ID)
		}
		if err := validation.ValidateActivityNaming(activity.TaskType); err != nil {
			return fmt.Errorf("activity %s: %w", activity.ID, err)
		}

		switch activity.ImplementationStatus {
		case "", StatusPlanned, StatusInProgress, StatusCompleted, StatusVerified:
		default:
			return fmt.Errorf("activity %s has unknown status %q", activity.ID, activity.ImplementationStatus)
		}

		if activity.Timeout != "" {
			if d, err := time.ParseDuration(activity.Timeout); err != nil || d <= 0 {
				return fmt.Errorf("activity %s has invalid timeout %q", activity.ID, activity.Timeout)
			}
		}

		for name, schema := range map[string]map[string]interface{}{
			"input":  activity.InputSchema,
			"output": activity.OutputSchema,
		} {
			if len(schema) == 0 {
				continue
			}
			raw, err := json.Marshal(schema)
			if err != nil {
				return fmt.Errorf("activity %s %s schema: %w", activity.ID, name, err)
			}
			if _, err := validation.CompileSchema(string(raw)); err != nil {
				return fmt.Errorf("activity %s %s schema: %w", activity.ID, name, err)
			}
		}
	}

	return nil
}
