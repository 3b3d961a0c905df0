// Package sectorfs ties the Disk Image, Sector Space Manager, Inode Store,
// and File Sector Manager together into a single filesystem handle backed
// by one flat disk image file.
//
// Typical usage, creating a fresh image and filesystem:
//
//	fsys, err := sectorfs.Create("/tmp/disk.img", sectorfs.DefaultConstants())
//	inodeNum, err := fsys.CreateFile(false, "hello.txt", sectorfs.RootInode)
//	err = fsys.WriteFile(inodeNum, []byte("hello"))
//
// and reopening it later:
//
//	fsys, err := sectorfs.Open("/tmp/disk.img", sectorfs.DefaultConstants())
//	data, err := fsys.ReadFile(inodeNum)
package sectorfs

import (
	"errors"
	"fmt"

	"github.com/sectorfs/sectorfs/fsm"
	"github.com/sectorfs/sectorfs/image"
	"github.com/sectorfs/sectorfs/inodestore"
	"github.com/sectorfs/sectorfs/ssm"
)

// RootInode is the well-known inode number of the root directory, created
// by Create and assumed present by Open.
const RootInode = 2

// sectorMapSuffix and inodeMapSuffix name the sidecar bitmap files the
// Sector Space Manager and Inode Store persist alongside the disk image,
// following the literal FSM_INODE_MAP convention spec.md names for the
// inode bitmap.
const (
	sectorMapSuffix = ".ssm-map"
	inodeMapSuffix  = ".FSM_INODE_MAP"
)

// DefaultConstants returns the layout this package was validated against:
// 512-byte blocks, a 128 KiB image, and a 5-block inode table sized to hold
// 32 68-byte inode records with room to spare. Callers building a larger
// image should compute their own fsm.Constants instead of scaling these —
// InodeBlocks*BlockSize must stay >= InodeCount*68 or the inode table
// overruns into the data region.
func DefaultConstants() fsm.Constants {
	const blockSize = 512
	return fsm.Constants{
		BlockSize:   blockSize,
		DiskSize:    128 * 1024,
		InodeSize:   68,
		InodeBlocks: 5,
		InodeCount:  32,
	}
}

// layout carves a disk image of c.DiskSize bytes into a boot/super region
// (the first two blocks, handled by fsm.Make itself), an inode table of
// c.InodeBlocks blocks, and a data region spanning everything after it.
func layout(c fsm.Constants) (inodeTableStart, dataStart, sectorCap uint32) {
	inodeTableStart = 2 * c.BlockSize
	dataStart = inodeTableStart + c.InodeBlocks*c.BlockSize
	if c.DiskSize <= dataStart {
		return inodeTableStart, dataStart, 0
	}
	sectorCap = (c.DiskSize - dataStart) / c.BlockSize
	return inodeTableStart, dataStart, sectorCap
}

// Create lays out a brand new disk image at path and formats it: boot and
// super inodes, an empty inode bitmap, an empty sector bitmap, and a root
// directory at RootInode with "." and ".." entries. path must not already
// exist.
func Create(path string, c fsm.Constants) (*fsm.FileSystem, error) {
	if c.BlockSize == 0 {
		return nil, errors.New("sectorfs: constants.BlockSize must be nonzero")
	}
	img, err := image.Create(path, int64(c.DiskSize))
	if err != nil {
		return nil, fmt.Errorf("sectorfs: creating image: %w", err)
	}

	inodeTableStart, dataStart, sectorCap := layout(c)

	sm := ssm.New(path+sectorMapSuffix, c.BlockSize, dataStart, sectorCap)
	tableSize := int64(dataStart - inodeTableStart)
	tableStore := image.NewRegion(img.Store(), int64(inodeTableStart), tableSize)
	inodes, err := inodestore.Open(tableStore, 0, c.InodeCount, path+inodeMapSuffix)
	if err != nil {
		img.Close()
		return nil, fmt.Errorf("sectorfs: opening inode store: %w", err)
	}

	fsys, err := fsm.Make(c, img, sm, inodes)
	if err != nil {
		img.Close()
		return nil, fmt.Errorf("sectorfs: formatting filesystem: %w", err)
	}
	return fsys, nil
}

// Open attaches to an already-created disk image and its sidecar bitmap
// files at path, the counterpart to Create for reopening an existing
// filesystem. c must match the constants the image was created with.
func Open(path string, c fsm.Constants) (*fsm.FileSystem, error) {
	img, err := image.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sectorfs: opening image: %w", err)
	}

	inodeTableStart, dataStart, sectorCap := layout(c)

	sm, err := ssm.Load(path+sectorMapSuffix, c.BlockSize, dataStart, sectorCap)
	if err != nil {
		img.Close()
		return nil, fmt.Errorf("sectorfs: loading sector map: %w", err)
	}
	tableSize := int64(dataStart - inodeTableStart)
	tableStore := image.NewRegion(img.Store(), int64(inodeTableStart), tableSize)
	inodes, err := inodestore.Open(tableStore, 0, c.InodeCount, path+inodeMapSuffix)
	if err != nil {
		img.Close()
		return nil, fmt.Errorf("sectorfs: opening inode store: %w", err)
	}

	return fsm.Open(c, img, sm, inodes), nil
}
