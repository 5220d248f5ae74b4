package cmd

import (
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultConfigName = ".ttbm"
	envPrefix         = "TTBM"
)

// loadConfigFile merges the config file into v and enables environment overrides. An explicit cfgFile must
// exist; the default $HOME/.ttbm.yaml is optional.
func loadConfigFile(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return errors.Wrap(err, "error getting user home directory")
		}
		v.AddConfigPath(home)
		v.SetConfigName(defaultConfigName)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	err := v.MergeInConfig()
	if err != nil {
		switch err.(type) {
		case viper.ConfigFileNotFoundError:
			// Only returned when looking for the default file, which users don't have to create
			return nil
		case *os.PathError:
			return errors.Errorf("config file %s does not exist", cfgFile)
		default:
			return errors.Wrapf(err, "error reading config file %s", v.ConfigFileUsed())
		}
	}
	log.Infof("Using config file %s", v.ConfigFileUsed())
	return nil
}

// bindFlags binds each flag to the viper key it is mapped to.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, bindings map[string]string) error {
	for name, key := range bindings {
		flag := flags.Lookup(name)
		if flag == nil {
			return errors.Errorf("no flag named %s", name)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return errors.Wrapf(err, "binding flag %s", name)
		}
	}
	return nil
}
