package main

import (
	"fmt"
	"sort"

	"github.com/docker/go-units"
	"github.com/rstms/fatnav/fat"
	"github.com/rstms/fatnav/image"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func infoCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "info [IMAGE]",
		Short: "show the boot sector fields of an image",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, _, err := openImage(v, args)
			if err != nil {
				return err
			}
			defer img.Close()
			info, err := img.Info()
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(info))
			for key := range info {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			out := cmd.OutOrStdout()
			for _, key := range keys {
				fmt.Fprintf(out, "%-20s %v\n", key+":", info[key])
			}
			if size, ok := info["image_size"].(int64); ok {
				fmt.Fprintf(out, "%-20s %s\n", "size:", units.BytesSize(float64(size)))
			}
			return nil
		},
	}
}

func lsCmd(v *viper.Viper) *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "ls [IMAGE] [PATH]",
		Short: "list a directory of an image",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, rest, err := openImage(v, args)
			if err != nil {
				return err
			}
			defer img.Close()
			dirPath := "/"
			if len(rest) > 0 {
				dirPath = rest[0]
			}
			entries, err := img.ReadDir(dirPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				if !long {
					fmt.Fprintln(out, e)
					continue
				}
				modTime := "-"
				if t := e.ModTime(); !t.IsZero() {
					modTime = t.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(out, "%s %8d %10d %s %s\n", e.Attr, e.Cluster, e.Size, modTime, e)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show attributes, cluster, size and time")
	return cmd
}

func treeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "tree [IMAGE]",
		Short: "list every directory and file of an image",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, _, err := openImage(v, args)
			if err != nil {
				return err
			}
			defer img.Close()
			records, err := img.ScanFiles()
			if err != nil {
				return err
			}
			for _, record := range records {
				name := record.Name
				if record.Dir {
					name += "/"
				}
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func mkdirCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir [IMAGE] PATH...",
		Short: "create directories in an image",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, rest, err := openImage(v, args)
			if err != nil {
				return err
			}
			defer img.Close()
			if len(rest) == 0 {
				return fmt.Errorf("no directory given")
			}
			for _, dir := range rest {
				if err := img.Mkdir(dir); err != nil {
					return err
				}
				log.Infof("created %s", dir)
			}
			return nil
		},
	}
}

func formatCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "format [IMAGE]",
		Short: "create an empty FAT32 image",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _, err := imageName(v, args)
			if err != nil {
				return err
			}
			size, err := parseSize(v.GetString("format.size"))
			if err != nil {
				return err
			}
			config := &fat.SuperFloppyConfig{
				Label:             v.GetString("format.label"),
				OEMName:           v.GetString("format.oem"),
				SectorsPerCluster: uint8(v.GetUint("format.sectors-per-cluster")),
			}
			img, err := image.CreateImage(appFs, name, config, size)
			if err != nil {
				return err
			}
			defer img.Close()
			log.Infof("formatted %s (%s)", name, units.BytesSize(float64(size)))
			return nil
		},
	}
	flags := cmd.Flags()
	flags.String("size", "", "image size, e.g. 64MiB")
	flags.String("label", "", "volume label")
	flags.String("oem", "", "OEM name")
	flags.Uint8("sectors-per-cluster", 0, "sectors per cluster")
	for _, key := range []string{"size", "label", "oem", "sectors-per-cluster"} {
		cobra.CheckErr(v.BindPFlag("format."+key, flags.Lookup(key)))
	}
	return cmd
}

func shellCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "shell [IMAGE]",
		Short: "navigate an image interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, _, err := openImage(v, args)
			if err != nil {
				return err
			}
			defer img.Close()
			return image.NewShell(img, cmd.OutOrStdout()).Run(cmd.InOrStdin())
		},
	}
}
