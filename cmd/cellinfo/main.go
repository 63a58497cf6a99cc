// Copyright (c) 2019-2020 The Zcash developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nkrasko/tonboc/boc"
	"github.com/nkrasko/tonboc/cell"
	"github.com/nkrasko/tonboc/tlb"
)

var logger = logrus.New()

func init() {
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		DisableLevelTruncation: true,
	})
}

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "cellinfo",
	Short: "cellinfo inspects and builds TON Bag-of-Cells data",
	Long:  `cellinfo is a small diagnostic tool for the tonboc cell/boc/tlb packages.`,
}

var parseCmd = &cobra.Command{
	Use:   "parse [hex-or-base64-boc]",
	Short: "parse a Bag-of-Cells and print root cell hashes and depths",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		raw := args[0]
		var (
			bag *boc.BagOfCells
			err error
		)
		if _, decErr := hex.DecodeString(raw); decErr == nil {
			bag, err = boc.ParseHex(raw)
		} else {
			bag, err = boc.ParseBase64(raw)
		}
		if err != nil {
			logger.WithFields(logrus.Fields{"error": err}).Fatal("couldn't parse BoC")
		}
		for i, root := range bag.Roots {
			printCellInfo(i, root)
		}
	},
}

func printCellInfo(i int, c *cell.Cell) {
	fmt.Printf("root[%d]: type=%s level=%d bits=%d refs=%d\n", i, c.Type(), c.Level(), c.BitLen(), c.RefsCount())
	for level := 0; level <= c.Level(); level++ {
		fmt.Printf("  hash[%d]=%s depth[%d]=%d\n", level, c.Hash(level), level, c.Depth(level))
	}
	printBlockSummary(i, c)
}

// printBlockSummary tries to read the root as a Block and, if it
// decodes, prints BlockInfo and (on a key block) the validator-set
// summary from its masterchain configuration. A root that isn't a
// Block is silently skipped: most BoC payloads this tool inspects
// aren't blocks at all.
func printBlockSummary(i int, c *cell.Cell) {
	b, err := tlb.LoadBlock(c)
	if err != nil {
		return
	}
	if b.Info != nil {
		fmt.Printf("  root[%d] block: seq_no=%d gen_utime=%d key_block=%t\n",
			i, b.Info.SeqNo, b.Info.GenUtime, b.Info.KeyBlock)
	}
	if b.Extra == nil || b.Extra.Custom == nil || !b.Extra.Custom.HasConfig {
		return
	}
	for param, vs := range b.Extra.Custom.Config.Sets {
		fmt.Printf("  root[%d] config[%d]: total=%d main=%d utime_since=%d utime_until=%d\n",
			i, param, vs.Total, vs.Main, vs.UtimeSince, vs.UtimeUntil)
	}
}

var buildEmptyCmd = &cobra.Command{
	Use:   "build-empty",
	Short: "build and serialize a single empty ordinary cell, printing it hex-encoded",
	Run: func(cmd *cobra.Command, args []string) {
		c, err := cell.NewBuilder().Build()
		if err != nil {
			logger.WithFields(logrus.Fields{"error": err}).Fatal("couldn't build cell")
		}
		out, err := boc.Serialize(c, boc.Options{HasCRC32C: true})
		if err != nil {
			logger.WithFields(logrus.Fields{"error": err}).Fatal("couldn't serialize BoC")
		}
		fmt.Println(hex.EncodeToString(out))
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print cellinfo version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("cellinfo version", version)
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(buildEmptyCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
