package queue

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/thakurlabs/thakur/internal/models"
)

// genFramework generates a random supported framework.
func genFramework() gopter.Gen {
	return gen.OneConstOf(
		models.FrameworkNextJS,
		models.FrameworkVite,
		models.FrameworkExpress,
		models.FrameworkHono,
		models.FrameworkElysia,
	)
}

// genOptionalInstallationID generates an optional installation reference.
func genOptionalInstallationID() gopter.Gen {
	return gen.Bool().FlatMap(func(v interface{}) gopter.Gen {
		if v.(bool) {
			return gen.Int64Range(1, 1<<40).Map(func(id int64) *int64 {
				return &id
			})
		}
		return gen.Const((*int64)(nil))
	}, reflect.TypeOf((*int64)(nil)))
}

// genBuildJobData generates a random valid queue payload.
func genBuildJobData() gopter.Gen {
	return gopter.CombineGens(
		gen.Identifier(), // BuildID
		gen.Identifier(), // ProjectID
		gen.Identifier(), // repo name
		gen.AlphaString(),                        // BuildCommand tail
		gen.OneConstOf("./", "apps/web", "src"),  // RootDirectory
		genFramework(),                           // Framework
		gen.MapOf(gen.Identifier(), gen.AlphaString()), // EnvVars
		genOptionalInstallationID(),
	).Map(func(vals []interface{}) models.BuildJobData {
		return models.BuildJobData{
			BuildID:        vals[0].(string),
			ProjectID:      vals[1].(string),
			RepoURL:        "https://github.com/acme/" + vals[2].(string),
			BuildCommand:   "npm install && npm run build" + vals[3].(string),
			RootDirectory:  vals[4].(string),
			Framework:      vals[5].(models.Framework),
			EnvVars:        vals[6].(map[string]string),
			InstallationID: vals[7].(*int64),
		}
	})
}

// jsonEqual compares two values by their JSON representation, which treats
// empty and nil maps the same way the wire does.
func jsonEqual(a, b interface{}) bool {
	jsonA, errA := json.Marshal(a)
	jsonB, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(jsonA) == string(jsonB)
}

// A payload serialized at enqueue time must decode to an equivalent payload
// at dequeue time.
func TestBuildJobDataJSONRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("queue payload JSON round-trip preserves data", prop.ForAll(
		func(original models.BuildJobData) bool {
			data, err := json.Marshal(original)
			if err != nil {
				return false
			}

			restored, err := models.DecodeBuildJobData(data)
			if err != nil {
				return false
			}

			return jsonEqual(original, *restored)
		},
		genBuildJobData(),
	))

	properties.TestingRun(t)
}

func TestDecodeBuildJobDataRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{
			name:    "unknown field",
			payload: `{"build_id":"b1","project_id":"p1","repo_url":"https://x","framework":"vite","sneaky":"yes"}`,
			wantErr: "unknown field",
		},
		{
			name:    "missing build id",
			payload: `{"project_id":"p1","repo_url":"https://x","framework":"vite"}`,
			wantErr: "build_id is required",
		},
		{
			name:    "missing repo url",
			payload: `{"build_id":"b1","project_id":"p1","framework":"vite"}`,
			wantErr: "repo_url is required",
		},
		{
			name:    "unknown framework",
			payload: `{"build_id":"b1","project_id":"p1","repo_url":"https://x","framework":"rails"}`,
			wantErr: "unknown framework",
		},
		{
			name:    "not json",
			payload: `not even close`,
			wantErr: "decoding build job",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := models.DecodeBuildJobData([]byte(tt.payload))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}
