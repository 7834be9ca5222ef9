/*
Package upload pushes a file to the controller over the upload channel.

The transfer is a fixed sequence of frames on a fresh connection:

 1. the file name, as a text frame
 2. the total length in bytes, as a decimal text frame
 3. the contents, as binary frames of ChunkSize bytes each (the last one may be shorter)

Chunks are sent eagerly in offset order. There is no per-chunk acknowledgement; the protocol relies on the transport's
in-order, reliable delivery. Whatever the controller sends back on the channel is appended verbatim to the upload
result sink, and the close code ends the transfer.

Closing the connection is the only way to abort a transfer, which leaves a partial file on the controller.
*/
package upload
