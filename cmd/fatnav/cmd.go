package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
	"github.com/rstms/fatnav/fat"
	"github.com/rstms/fatnav/image"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "FATNAV"

// appFs is the filesystem images are opened on.
var appFs = afero.NewOsFs()

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "fatnav")
}

func readConfig(v *viper.Viper, cfgFile string) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read %q: %w", cfgFile, err)
		}
		return nil
	}
	if dir := defaultConfigDir(); dir != "" {
		v.AddConfigPath(dir)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to parse config: %w", err)
		}
	}
	return nil
}

func newCmd() *cobra.Command {
	var cfgFile string
	v := viper.New()
	v.SetDefault("format.size", "64MiB")
	v.SetDefault("format.label", "")
	v.SetDefault("format.oem", fat.DefaultOEMName)
	v.SetDefault("format.sectors-per-cluster", fat.DefaultSectorsPerCluster)

	cmd := &cobra.Command{
		Use:               "fatnav",
		Short:             "navigate and modify FAT32 volume images",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := readConfig(v, cfgFile); err != nil {
				return err
			}
			return setupLogging(v.GetBool("quiet"), v.GetBool("verbose"))
		},
	}

	cmd.AddCommand(infoCmd(v))
	cmd.AddCommand(lsCmd(v))
	cmd.AddCommand(treeCmd(v))
	cmd.AddCommand(mkdirCmd(v))
	cmd.AddCommand(formatCmd(v))
	cmd.AddCommand(shellCmd(v))

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default $HOME/.config/fatnav/config.yaml)")
	flags.StringP("image", "i", "", "FAT32 image file")
	flags.BoolP("quiet", "q", false, "Quiet execution")
	flags.BoolP("verbose", "v", false, "Verbose execution")
	for _, key := range []string{"image", "quiet", "verbose"} {
		cobra.CheckErr(v.BindPFlag(key, flags.Lookup(key)))
	}

	return cmd
}

// imageName returns the image named by the first of args, or by the
// image setting.
func imageName(v *viper.Viper, args []string) (string, []string, error) {
	if name := v.GetString("image"); name != "" {
		return name, args, nil
	}
	if len(args) > 0 {
		return args[0], args[1:], nil
	}
	return "", args, errors.New("no image given, use --image or " + envPrefix + "_IMAGE")
}

func openImage(v *viper.Viper, args []string) (*image.Image, []string, error) {
	name, rest, err := imageName(v, args)
	if err != nil {
		return nil, nil, err
	}
	img, err := image.OpenImage(appFs, name)
	if err != nil {
		return nil, nil, err
	}
	return img, rest, nil
}

func parseSize(s string) (int64, error) {
	size, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if size <= 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return size, nil
}
