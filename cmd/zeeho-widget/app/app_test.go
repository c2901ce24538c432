package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/bestk/zeeho-widgets/cmd/zeeho-widget/app/options"
	"github.com/bestk/zeeho-widgets/internal/telemetry/model"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())
	viper.Reset()
	t.Cleanup(viper.Reset)
	return home
}

func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/vehicleHomePage") {
			fmt.Fprint(w, `{"code":"10000","data":[{"vinNo":"LVIN1","vehicleName":"A","deviceName":"DEV1","bmssoc":"50","hmiRidableMile":"20"},{"vinNo":"LVIN2","vehicleName":"B","deviceName":"DEV2"}]}`)
			return
		}
		fmt.Fprint(w, `{"code":"10000","data":{"vehicleName":"MyBike","bmssoc":"87","hmiRidableMile":"42"}}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := NewApp().Command()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute(%v) error = %v", args, err)
	}
	return out.String()
}

func TestShowJSON(t *testing.T) {
	isolate(t)
	srv := upstream(t)

	out := execute(t, "show", "-o", "json",
		"--zeeho.base-url", srv.URL, "--zeeho.token", "abc", "--zeeho.vehicle-id", "V1")

	var v model.VehicleData
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if v.VehicleName != "MyBike" || v.Bmssoc != "87" {
		t.Errorf("unexpected vehicle: %+v", v)
	}
}

func TestVehiclesTable(t *testing.T) {
	isolate(t)
	srv := upstream(t)

	out := execute(t, "vehicles", "--zeeho.base-url", srv.URL, "--zeeho.token", "abc")

	for _, want := range []string{"ID", "VIN", "DEV1", "LVIN1", "50 %", "20 km", "DEV2", "LVIN2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigureWritesLegacyFormat(t *testing.T) {
	home := isolate(t)
	srv := upstream(t)

	path := filepath.Join(home, ".zeeho-config.json")
	if err := os.WriteFile(path, []byte(`{"token":"old","mqtt":{"broker":"tcp://localhost:1883"}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	execute(t, "configure", "--zeeho.base-url", srv.URL,
		"--zeeho.token", "new", "--zeeho.vehicle-id", "V1", "--zeeho.update-interval", "10m")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc["token"] != "new" || doc["vehicleId"] != "V1" || doc["updateInterval"] != float64(10) {
		t.Errorf("unexpected saved config: %s", data)
	}
	if _, ok := doc["mqtt"]; !ok {
		t.Errorf("existing keys dropped: %s", data)
	}
}

func TestLegacyConfigFile(t *testing.T) {
	home := isolate(t)
	srv := upstream(t)

	legacy := fmt.Sprintf(`{"token":"abc","vehicleId":"V1","updateInterval":5,"zeeho":{"base-url":%q}}`, srv.URL)
	if err := os.WriteFile(filepath.Join(home, ".zeeho-config.json"), []byte(legacy), 0o600); err != nil {
		t.Fatal(err)
	}

	out := execute(t, "show")
	if !strings.Contains(out, "MyBike") {
		t.Errorf("output missing vehicle name:\n%s", out)
	}
}

func TestFoldLegacyKeysPrecedence(t *testing.T) {
	v := viper.New()
	v.Set("token", "legacy")
	v.Set("updateInterval", 3)
	v.SetConfigType("json")
	if err := v.ReadConfig(strings.NewReader(`{"zeeho":{"token":"nested"}}`)); err != nil {
		t.Fatal(err)
	}

	if err := foldLegacyKeys(v); err != nil {
		t.Fatal(err)
	}
	if got := v.GetString("zeeho.token"); got != "nested" {
		t.Errorf("zeeho.token = %q, want nested key to win", got)
	}
	if got := v.GetInt("zeeho.update-interval"); got != 3 {
		t.Errorf("zeeho.update-interval = %d, want 3", got)
	}
	if v.IsSet("zeeho.vehicle-id") {
		t.Error("zeeho.vehicle-id set without a legacy value")
	}
}

func TestSaveLegacyConfigRejectsNonObject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`[1,2]`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := saveLegacyConfig(path, "t", "v", 5); err == nil {
		t.Fatal("expected error for non-object config")
	}
}

func TestValidateOutput(t *testing.T) {
	for _, tc := range []struct {
		output  string
		wantErr bool
	}{
		{"table", false},
		{"json", false},
		{"yaml", true},
	} {
		if err := validateOutput(tc.output); (err != nil) != tc.wantErr {
			t.Errorf("validateOutput(%q) error = %v, wantErr %v", tc.output, err, tc.wantErr)
		}
	}
}

func TestVehicleTable(t *testing.T) {
	v := &model.VehicleData{
		VehicleName: "MyBike",
		Bmssoc:      "87",
		Location:    &model.Location{Longitude: 120.1, Latitude: 30.2, Address: "Hangzhou"},
		Decrypted:   &model.DecryptedField{Status: model.FieldUnavailable, Reason: "padding invalid"},
	}

	out := vehicleTable(v).String()
	for _, want := range []string{"MyBike", "87 %", "Hangzhou", "unavailable (padding invalid)"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestCommandTimeout(t *testing.T) {
	if d := commandTimeout(options.NewWidgetOptions()); d != 25*time.Second {
		t.Errorf("commandTimeout() = %s, want 25s", d)
	}
}
