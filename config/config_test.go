package config

import (
	"io/ioutil"
	"path/filepath"
	"testing"
)

const sampleConfig = `
global:
  bindAddr: 0.0.0.0
  bindPort: "29104"
  postgres:
    user: signup
    host: localhost
    port: "5432"
    dbName: signup
applications:
  - name: memberportal
    fullDomainUrl: https://members.example.com
    middlewareUrl: https://mw.example.com
    fusionAuthAppId: app-1
    erpBaseUrl: https://erp.example.com/api
    backendFnBaseUrl: https://fns.example.com
    jwt:
      cookieName: mp_jwt
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := ioutil.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigYamlFile(t *testing.T) {
	conf, err := LoadConfigYamlFile(writeSample(t))
	if err != nil {
		t.Fatal(err)
	}
	if conf.Global.BindPort != "29104" {
		t.Errorf("bindPort %v", conf.Global.BindPort)
	}
	if len(conf.Applications) != 1 || conf.Applications[0].JWT.CookieName != "mp_jwt" {
		t.Errorf("unexpected applications: %+v", conf.Applications)
	}
}

func TestDefaultsAppliedWhenOmitted(t *testing.T) {
	conf, err := LoadConfigYamlFile(writeSample(t))
	if err != nil {
		t.Fatal(err)
	}
	if conf.Global.AuthTimeoutSeconds != 10 {
		t.Errorf("auth timeout default %v, want 10", conf.Global.AuthTimeoutSeconds)
	}
	if conf.Global.BackendFnTimeoutSeconds != 15 {
		t.Errorf("backend fn timeout default %v, want 15", conf.Global.BackendFnTimeoutSeconds)
	}
	if conf.Global.ERPTimeoutSeconds != 30 {
		t.Errorf("erp timeout default %v, want 30", conf.Global.ERPTimeoutSeconds)
	}
	if conf.Global.VerificationRatePerMin != 5 || conf.Global.VerificationBurst != 3 {
		t.Errorf("verification limit defaults %v/%v", conf.Global.VerificationRatePerMin, conf.Global.VerificationBurst)
	}
	if conf.Global.Redis.SessionTTLSeconds != 86400 {
		t.Errorf("session ttl default %v, want 86400", conf.Global.Redis.SessionTTLSeconds)
	}
}

func TestGetAppByOrigin(t *testing.T) {
	conf, err := LoadConfigYamlFile(writeSample(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := conf.GetAppByOrigin("members.example.com"); !ok {
		t.Error("configured origin should resolve")
	}
	if _, ok := conf.GetAppByOrigin("evil.example.net"); ok {
		t.Error("unknown origin must not resolve")
	}
	if _, ok := conf.GetConfigForAppID("app-1"); !ok {
		t.Error("configured app id should resolve")
	}
}
