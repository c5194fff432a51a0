/*
Package cntio reads and writes chunked CNT/EEP multichannel biosignal
recordings: a stream of compressed, block-structured 32-bit float samples
plus metadata chunks for channel descriptors, recording info and triggers.

Data Structure Documentation

Store

A store starts with a fixed-size header, followed by a series of encoded
sample blocks, the metadata chunks and, last, the chunk table. The table
is written last so blocks can be streamed as samples arrive; the header
fields pointing at it are patched when the writer is closed.

    Store layout:
    +--------+---------+-----+---------+-------------+-------------+
    | header | block 1 | ... | block n | meta chunks | chunk table |
    +--------+---------+-----+---------+-------------+-------------+

    Header (48 bytes, little-endian):
    +-----------+---------------+------------+----------+-------------+----------------+--------------------+--------------------+---------------+---------+
    | magic (8) | version (u16) | flags (u8) | pad (u8) | rate (u32)  | channels (u32) | sample count (u64) | table offset (u64) | entries (u32) | pad (8) |
    +-----------+---------------+------------+----------+-------------+----------------+--------------------+--------------------+---------------+---------+

    Chunk table entry:
    +---------+------------------+------------------+
    | tag (4) | offset (u32|u64) | length (u32|u64) |
    +---------+------------------+------------------+

Offset and length fields are 32-bit in the legacy variant and 64-bit in
the large (RF64-style) variant; the variant is chosen once at creation
time and recorded in the header flags. The 'chan' (channel table) and
'blks' (sample block table) chunks are mandatory, 'info' (recording
info) and 'trgs' (trigger table) optional.

Block

A block holds a run of consecutive interleaved samples, sample-major and
channel-minor, encoded by a codec and terminated by a single codec ID
byte. Blocks need not share one size; the final block of a recording is
usually shorter. Each entry of the block table records enough to decode
its block independently, so random access never requires a global pass.

    Block layout:
    +---------------+-------------------+
    | codec payload | codec ID (1 byte) |
    +---------------+-------------------+

    Block table entry:
    +------------------+------------------+--------------------+
    | offset (u32|u64) | enc length (u32) | sample count (u32) |
    +------------------+------------------+--------------------+

Strings

Optional strings are stored as uvarint(len+1) followed by the bytes, a
zero marking an absent field. This keeps "not present" distinct from
"present but empty" across a write/read cycle.
*/
package cntio
