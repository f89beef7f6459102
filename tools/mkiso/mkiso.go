package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	diskfs "github.com/diskfs/go-diskfs"
	diskpkg "github.com/diskfs/go-diskfs/disk"
	"github.com/diskfs/go-diskfs/filesystem"
	"github.com/diskfs/go-diskfs/filesystem/iso9660"
)

const (
	sectorSize = 2048

	// slack reserves room for the ISO9660 metadata, the boot catalog
	// and the generated grub.cfg.
	slack = 2 << 20

	kernelPath    = "/boot/kernel.bin"
	loaderPath    = "/boot/grub/eltorito.img"
	grubCfgPath   = "/boot/grub/grub.cfg"
	bootCatalog   = "boot.cat"
	volumeLabel   = "KCORE"
	loaderSectors = 4
)

type isoConfig struct {
	kernel  string
	loader  string
	cmdLine string
	out     string
}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[mkiso] error: %s\n", err.Error())
	os.Exit(1)
}

// grubConfig returns a grub.cfg that boots the kernel through multiboot2.
func grubConfig(cmdLine string) string {
	var buf strings.Builder
	buf.WriteString("set timeout=0\nset default=0\n\n")
	buf.WriteString("menuentry \"kcore\" {\n")
	fmt.Fprintf(&buf, "\tmultiboot2 %s", kernelPath)
	if cmdLine = strings.TrimSpace(cmdLine); cmdLine != "" {
		fmt.Fprintf(&buf, " %s", cmdLine)
	}
	buf.WriteString("\n\tboot\n}\n")
	return buf.String()
}

// imageSize returns the size of an image able to hold the supplied files
// rounded up to a whole number of sectors.
func imageSize(files ...string) (int64, error) {
	size := int64(slack)
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			return 0, err
		}
		size += info.Size()
	}

	return (size + sectorSize - 1) &^ (sectorSize - 1), nil
}

func copyFile(fs filesystem.FileSystem, dstPath string, src io.Reader) error {
	dst, err := fs.OpenFile(dstPath, os.O_CREATE|os.O_RDWR)
	if err != nil {
		return err
	}

	_, err = io.Copy(dst, src)
	_ = dst.Close()
	return err
}

// buildISO writes a bootable El Torito image containing the kernel, the boot
// loader image and a generated grub.cfg.
func buildISO(cfg isoConfig) error {
	size, err := imageSize(cfg.kernel, cfg.loader)
	if err != nil {
		return err
	}

	_ = os.Remove(cfg.out)
	disk, err := diskfs.Create(cfg.out, size, diskfs.Raw, diskfs.SectorSize(sectorSize))
	if err != nil {
		return err
	}

	spec := diskpkg.FilesystemSpec{Partition: 0, FSType: filesystem.TypeISO9660, VolumeLabel: volumeLabel}
	fs, err := disk.CreateFilesystem(spec)
	if err != nil {
		return err
	}

	if err := fs.Mkdir("/boot/grub"); err != nil {
		return err
	}

	for _, item := range []struct {
		src string
		dst string
	}{
		{cfg.kernel, kernelPath},
		{cfg.loader, loaderPath},
	} {
		src, err := os.Open(item.src)
		if err != nil {
			return err
		}
		err = copyFile(fs, item.dst, src)
		_ = src.Close()
		if err != nil {
			return err
		}
	}

	if err := copyFile(fs, grubCfgPath, strings.NewReader(grubConfig(cfg.cmdLine))); err != nil {
		return err
	}

	iso, ok := fs.(*iso9660.FileSystem)
	if !ok {
		return errors.New("unexpected filesystem type")
	}

	return iso.Finalize(iso9660.FinalizeOptions{
		VolumeIdentifier: volumeLabel,
		RockRidge:        true,
		ElTorito: &iso9660.ElTorito{
			BootCatalog: bootCatalog,
			Entries: []*iso9660.ElToritoEntry{
				{
					Platform:  iso9660.BIOS,
					Emulation: iso9660.NoEmulation,
					BootFile:  loaderPath,
					BootTable: true,
					LoadSize:  loaderSectors,
				},
			},
		},
	})
}

func runTool() error {
	var cfg isoConfig
	flag.StringVar(&cfg.kernel, "kernel", "build/kernel.bin", "the multiboot2 kernel image")
	flag.StringVar(&cfg.loader, "loader", "build/eltorito.img", "the GRUB El Torito boot image")
	flag.StringVar(&cfg.cmdLine, "cmdline", "", "the kernel command line (e.g. \"kheap.trace=on pit.sleepTest=on\")")
	flag.StringVar(&cfg.out, "out", "build/kcore.iso", "the ISO image to create")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "mkiso: pack the kernel into a bootable ISO image\n\n")
		fmt.Fprint(os.Stderr, "Usage: mkiso [options]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	return buildISO(cfg)
}

func main() {
	if err := runTool(); err != nil {
		exit(err)
	}
}
