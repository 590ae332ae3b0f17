package configure

import (
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/plumed-nebula/yana/internal/testutil"
)

func TestGalleryDataDirKey(t *testing.T) {
	v := viper.New()
	v.SetConfigType("json")
	testutil.IsNil(t, v.ReadConfig(strings.NewReader(`{"gallery":{"data_dir":"/var/lib/yana"}}`)), "read config")

	c := Config{}
	testutil.IsNil(t, v.Unmarshal(&c), "unmarshal")
	testutil.Assert(t, "/var/lib/yana", c.Gallery.DataDir, "gallery data dir")
}

func TestEnvBinding(t *testing.T) {
	t.Setenv("YANA_GALLERY_DATA_DIR", "/srv/yana")
	t.Setenv("YANA_DOWNLOAD_MAX_BYTES", "1024")

	v := viper.New()
	bindEnvs(v, Config{})
	v.AutomaticEnv()
	v.SetEnvPrefix("YANA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true)

	c := Config{}
	testutil.IsNil(t, v.Unmarshal(&c), "unmarshal")
	testutil.Assert(t, "/srv/yana", c.Gallery.DataDir, "env gallery data dir")
	testutil.Assert(t, int64(1024), c.Download.MaxBytes, "env download cap")
}
